package grouporder

const (
	AvailabilityAvailable   = "available"
	AvailabilityUnavailable = "unavailable"
	AvailabilitySoldOut     = "sold_out"
)

// CatalogItem is a read-only menu entry. Price is in minor currency units.
type CatalogItem struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Price        int64  `json:"price"`
	Availability string `json:"availabilityStatus"`
}

func (c CatalogItem) Available() bool {
	return c.Availability == AvailabilityAvailable
}

// Catalog resolves catalog items by id. The core never loads catalog data itself.
type Catalog interface {
	Lookup(id string) (CatalogItem, bool)
}

// StaticCatalog is an immutable catalog snapshot.
type StaticCatalog struct {
	items map[string]CatalogItem
	order []string
}

func NewStaticCatalog(items []CatalogItem) *StaticCatalog {
	c := &StaticCatalog{items: make(map[string]CatalogItem, len(items))}
	for _, item := range items {
		if _, ok := c.items[item.ID]; !ok {
			c.order = append(c.order, item.ID)
		}
		c.items[item.ID] = item
	}
	return c
}

func (c *StaticCatalog) Lookup(id string) (CatalogItem, bool) {
	if c == nil {
		return CatalogItem{}, false
	}
	item, ok := c.items[id]
	return item, ok
}

// Items returns the catalog entries in load order.
func (c *StaticCatalog) Items() []CatalogItem {
	if c == nil {
		return nil
	}
	out := make([]CatalogItem, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.items[id])
	}
	return out
}

func (c *StaticCatalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.items)
}
