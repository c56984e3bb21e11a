package domain

// StockKey addresses a stock unit. An empty VariantID means the bare product
// counter, which is only authoritative when the product has no variants.
type StockKey struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
}

func (k StockKey) HasVariant() bool {
	return k.VariantID != ""
}

func (k StockKey) String() string {
	if k.VariantID == "" {
		return k.ProductID
	}
	return k.ProductID + "/" + k.VariantID
}

type StockLevel struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Name      string `json:"name"`
	Available int    `json:"available"`
}

func (s StockLevel) Key() StockKey {
	return StockKey{ProductID: s.ProductID, VariantID: s.VariantID}
}
