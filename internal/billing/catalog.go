package billing

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnpricedService = errors.New("no price configured for service")

// Catalog resolves the charge amount for a bookable service. The scheduling
// core only uses it to open the pending payment; pricing rules live with the
// billing collaborator.
type Catalog interface {
	PriceFor(serviceType, specialty string) (int64, error)
}

// StaticCatalog prices services from a fixed table keyed by
// "serviceType/specialty", falling back to a per-service default.
type StaticCatalog struct {
	prices   map[string]int64
	defaults map[string]int64
}

func NewStaticCatalog(defaults map[string]int64) *StaticCatalog {
	c := &StaticCatalog{
		prices:   make(map[string]int64),
		defaults: make(map[string]int64, len(defaults)),
	}
	for k, v := range defaults {
		c.defaults[strings.ToLower(k)] = v
	}
	return c
}

// SetPrice registers a specialty-specific price override.
func (c *StaticCatalog) SetPrice(serviceType, specialty string, amountCents int64) {
	c.prices[key(serviceType, specialty)] = amountCents
}

func (c *StaticCatalog) PriceFor(serviceType, specialty string) (int64, error) {
	if amount, ok := c.prices[key(serviceType, specialty)]; ok {
		return amount, nil
	}
	if amount, ok := c.defaults[strings.ToLower(serviceType)]; ok {
		return amount, nil
	}
	return 0, fmt.Errorf("%w: %s/%s", ErrUnpricedService, serviceType, specialty)
}

func key(serviceType, specialty string) string {
	return strings.ToLower(serviceType) + "/" + strings.ToLower(specialty)
}
