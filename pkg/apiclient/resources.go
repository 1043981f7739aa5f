package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Resource names a CRUD collection under /v1.
type Resource string

const (
	Clientes       Resource = "clientes"
	Fornecedores   Resource = "fornecedores"
	Produtos       Resource = "produtos"
	Cores          Resource = "cores"
	Bancos         Resource = "bancos"
	Departamentos  Resource = "departamentos"
	Empresas       Resource = "empresas"
	Ramos          Resource = "ramos"
	Representantes Resource = "representantes"
	Usuarios       Resource = "usuarios"
)

// Resources lists every collection in menu order.
var Resources = []Resource{
	Clientes, Fornecedores, Produtos, Cores, Bancos,
	Departamentos, Empresas, Ramos, Representantes, Usuarios,
}

var resourceTitles = map[Resource]string{
	Clientes:       "Clientes",
	Fornecedores:   "Fornecedores",
	Produtos:       "Produtos",
	Cores:          "Cores",
	Bancos:         "Bancos",
	Departamentos:  "Departamentos",
	Empresas:       "Empresas",
	Ramos:          "Ramos",
	Representantes: "Representantes",
	Usuarios:       "Usuários",
}

// ParseResource accepts a resource name in any case.
func ParseResource(s string) (Resource, error) {
	r := Resource(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := resourceTitles[r]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownResource, s)
	}
	return r, nil
}

// Title returns the display name.
func (r Resource) Title() string {
	if t, ok := resourceTitles[r]; ok {
		return t
	}
	return string(r)
}

// Path returns the collection path relative to the API root.
func (r Resource) Path() string {
	return "v1/" + string(r)
}

func (r Resource) itemPath(id string) string {
	return r.Path() + "/" + url.PathEscape(id)
}

// Record is a business entity as returned by the backend. Its schema belongs
// to the backend and is not interpreted beyond the id.
type Record map[string]any

// ID returns the record identifier.
func (r Record) ID() string {
	for _, k := range []string{"id", "Id", "ID", "codigo"} {
		switch v := r[k].(type) {
		case string:
			return v
		case float64:
			return fmt.Sprintf("%.0f", v)
		case json.Number:
			return v.String()
		}
	}
	return ""
}

// List returns every record of a collection. Both bare arrays and paged
// envelopes ({"items"|"data"|"content": [...]}) are accepted.
func (c *Client) List(ctx context.Context, res Resource) ([]Record, error) {
	var raw json.RawMessage
	if err := c.Get(ctx, res.Path(), &raw); err != nil {
		return nil, err
	}
	records, err := decodeRecords(raw)
	if err != nil {
		return nil, &Error{Status: http.StatusOK, Data: responseData(raw), Message: "invalid response body", Err: err}
	}
	return records, nil
}

// Fetch returns a single record.
func (c *Client) Fetch(ctx context.Context, res Resource, id string) (Record, error) {
	var rec Record
	if err := c.Get(ctx, res.itemPath(id), &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Create posts a new record and returns what the backend sent back.
func (c *Client) Create(ctx context.Context, res Resource, rec Record) (Record, error) {
	var out Record
	if err := c.Post(ctx, res.Path(), rec, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Update replaces a record.
func (c *Client) Update(ctx context.Context, res Resource, id string, rec Record) error {
	return c.Put(ctx, res.itemPath(id), rec, nil)
}

// Remove deletes a record.
func (c *Client) Remove(ctx context.Context, res Resource, id string) error {
	return c.Delete(ctx, res.itemPath(id))
}

func decodeRecords(raw json.RawMessage) ([]Record, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var list []Record
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decoding records: %w", err)
	}
	for _, key := range []string{"items", "data", "content", "results"} {
		if inner, ok := envelope[key]; ok {
			if err := json.Unmarshal(inner, &list); err != nil {
				return nil, fmt.Errorf("decoding records under %q: %w", key, err)
			}
			return list, nil
		}
	}
	return nil, fmt.Errorf("decoding records: unrecognized response shape")
}
