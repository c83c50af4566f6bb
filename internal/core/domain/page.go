package domain

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageRequest is a zero-based page of Size rows.
type PageRequest struct {
	Page int
	Size int
}

// Normalize clamps the request into valid bounds.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 0 {
		p.Page = 0
	}
	switch {
	case p.Size <= 0:
		p.Size = DefaultPageSize
	case p.Size > MaxPageSize:
		p.Size = MaxPageSize
	}
	return p
}

func (p PageRequest) Offset() int {
	return p.Page * p.Size
}

type Page[T any] struct {
	Items []T `json:"items"`
	Page  int `json:"page"`
	Size  int `json:"size"`
	Total int `json:"total"`
}

// MapPage converts the items of a page, keeping its paging fields.
func MapPage[T, U any](p Page[T], fn func(T) (U, error)) (Page[U], error) {
	out := Page[U]{Items: make([]U, 0, len(p.Items)), Page: p.Page, Size: p.Size, Total: p.Total}
	for _, it := range p.Items {
		u, err := fn(it)
		if err != nil {
			return Page[U]{}, err
		}
		out.Items = append(out.Items, u)
	}
	return out, nil
}
