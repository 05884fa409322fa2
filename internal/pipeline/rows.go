package pipeline

import (
	"github.com/angelmondragon/shopdw/internal/dimension"
	"github.com/angelmondragon/shopdw/internal/signature"
	"github.com/angelmondragon/shopdw/internal/staging"
)

func productRows(products []staging.Product) []dimension.Row {
	rows := make([]dimension.Row, 0, len(products))
	for _, p := range products {
		rows = append(rows, dimension.Row{
			NaturalKey: staging.Key(p.ID),
			Attributes: signature.Record{
				"title":    p.Title,
				"category": p.Category,
				"price":    p.Price,
			},
		})
	}
	return rows
}

func storeRows(stores []staging.Store) []dimension.Row {
	rows := make([]dimension.Row, 0, len(stores))
	for _, s := range stores {
		rows = append(rows, dimension.Row{
			NaturalKey: staging.Key(s.StoreKey),
			Attributes: signature.Record{
				"store_name": s.StoreName,
				"location":   s.Location,
				"country":    s.Country,
			},
		})
	}
	return rows
}

func customerRows(customers []staging.Customer) []dimension.Row {
	rows := make([]dimension.Row, 0, len(customers))
	for _, c := range customers {
		rows = append(rows, dimension.Row{
			NaturalKey: staging.Key(c.ID),
			Attributes: signature.Record{
				"full_name": c.FullName,
				"email":     c.Email,
				"phone":     c.Phone,
				"country":   c.Country,
			},
		})
	}
	return rows
}
