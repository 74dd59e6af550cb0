// Package catalog assembles store and product views from attestation records
// and the content their content-hashes point to.
package catalog

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

// StoreRecord is the attestation data of a store.
type StoreRecord struct {
	ID              string `json:"id"`
	Owner           string `json:"owner"`
	Name            string `json:"name"`
	DescriptionHash string `json:"descriptionHash"`
	MediaHash       string `json:"mediaHash"`
	CreatedAt       int64  `json:"createdAt"`
}

// ProductRecord is the attestation data of a product.
type ProductRecord struct {
	ID              string `json:"id"`
	StoreID         string `json:"storeId"`
	Name            string `json:"name"`
	Price           string `json:"price"`
	Currency        string `json:"currency"`
	Stock           int64  `json:"stock"`
	DescriptionHash string `json:"descriptionHash"`
	MediaHash       string `json:"mediaHash"`
	CreatedAt       int64  `json:"createdAt"`
}

// Attestation decoders hand out loosely typed fields: numbers may arrive as
// strings or big integers rendered as text, hashes as byte strings.
func field(data map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := data[k]; ok {
			return v
		}
	}
	return nil
}

func hashField(data map[string]any, keys ...string) string {
	v := field(data, keys...)
	if b, ok := v.([]byte); ok {
		return fmt.Sprintf("0x%x", b)
	}
	return strings.TrimSpace(cast.ToString(v))
}

// StoreRecordFromAttestation maps decoded attestation fields onto a StoreRecord.
func StoreRecordFromAttestation(id string, data map[string]any) (StoreRecord, error) {
	rec := StoreRecord{
		ID:              id,
		Owner:           cast.ToString(field(data, "owner", "attester")),
		Name:            cast.ToString(field(data, "name")),
		DescriptionHash: hashField(data, "descriptionHash", "description"),
		MediaHash:       hashField(data, "mediaHash", "media"),
	}
	if v := field(data, "createdAt", "created_at", "time"); v != nil {
		createdAt, err := cast.ToInt64E(v)
		if err != nil {
			return StoreRecord{}, fmt.Errorf("store %s: createdAt: %w", id, err)
		}
		rec.CreatedAt = createdAt
	}
	return rec, nil
}

// ProductRecordFromAttestation maps decoded attestation fields onto a ProductRecord.
func ProductRecordFromAttestation(id string, data map[string]any) (ProductRecord, error) {
	rec := ProductRecord{
		ID:              id,
		StoreID:         cast.ToString(field(data, "storeId", "store_id", "store")),
		Name:            cast.ToString(field(data, "name")),
		Price:           cast.ToString(field(data, "price")),
		Currency:        cast.ToString(field(data, "currency")),
		DescriptionHash: hashField(data, "descriptionHash", "description"),
		MediaHash:       hashField(data, "mediaHash", "media"),
	}
	var err error
	if v := field(data, "stock", "quantity"); v != nil {
		if rec.Stock, err = cast.ToInt64E(v); err != nil {
			return ProductRecord{}, fmt.Errorf("product %s: stock: %w", id, err)
		}
	}
	if v := field(data, "createdAt", "created_at", "time"); v != nil {
		if rec.CreatedAt, err = cast.ToInt64E(v); err != nil {
			return ProductRecord{}, fmt.Errorf("product %s: createdAt: %w", id, err)
		}
	}
	return rec, nil
}
