// Package seed loads catalog, user and API key fixtures from JSON files,
// optionally gzip-compressed.
package seed

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/ogani-checkout/internal/domain/auth"
	"github.com/xenking/ogani-checkout/internal/domain/product"
	"github.com/xenking/ogani-checkout/internal/domain/user"
)

// Category is a product category.
type Category struct {
	ID   int64
	Name string
}

// APIKey is a key in its raw form. Only its hash is ever stored.
type APIKey struct {
	ID     string
	Name   string
	UserID int64
	Key    string
	Scopes []string
}

// Dataset is the content of one or more seed files.
type Dataset struct {
	Categories []Category
	Products   []product.Product
	Users      []user.User
	APIKeys    []APIKey
}

// Load reads a seed file. Files ending in .gz are decompressed.
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if filepath.Ext(path) == ".gz" {
		zr, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "gzip")
		}
		defer func() { _ = zr.Close() }()
		r = zr
	}

	d, err := Decode(r)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", filepath.Base(path))
	}
	return d, nil
}

// Decode parses a seed document. References may point into other documents,
// so validation is left to the merged dataset.
func Decode(r io.Reader) (*Dataset, error) {
	var d Dataset
	err := jx.Decode(r, 64*1024).Obj(func(dec *jx.Decoder, key string) error {
		switch key {
		case "categories":
			return dec.Arr(func(dec *jx.Decoder) error {
				c, err := decodeCategory(dec)
				d.Categories = append(d.Categories, c)
				return err
			})
		case "products":
			return dec.Arr(func(dec *jx.Decoder) error {
				p, err := decodeProduct(dec)
				d.Products = append(d.Products, p)
				return err
			})
		case "users":
			return dec.Arr(func(dec *jx.Decoder) error {
				u, err := decodeUser(dec)
				d.Users = append(d.Users, u)
				return err
			})
		case "apiKeys":
			return dec.Arr(func(dec *jx.Decoder) error {
				k, err := decodeAPIKey(dec)
				d.APIKeys = append(d.APIKeys, k)
				return err
			})
		default:
			return dec.Skip()
		}
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Merge combines datasets. Later entries with the same id replace earlier
// ones.
func Merge(sets ...*Dataset) *Dataset {
	var out Dataset
	categories := make(map[int64]int)
	products := make(map[int64]int)
	users := make(map[int64]int)
	keys := make(map[string]int)
	for _, d := range sets {
		for _, c := range d.Categories {
			out.Categories = upsert(out.Categories, categories, c.ID, c)
		}
		for _, p := range d.Products {
			out.Products = upsert(out.Products, products, p.ID, p)
		}
		for _, u := range d.Users {
			out.Users = upsert(out.Users, users, u.ID, u)
		}
		for _, k := range d.APIKeys {
			out.APIKeys = upsert(out.APIKeys, keys, k.ID, k)
		}
	}
	return &out
}

func upsert[K comparable, V any](s []V, index map[K]int, id K, v V) []V {
	if i, ok := index[id]; ok {
		s[i] = v
		return s
	}
	index[id] = len(s)
	return append(s, v)
}

// Validate checks references and value ranges.
func (d *Dataset) Validate() error {
	categories := make(map[int64]bool, len(d.Categories))
	for _, c := range d.Categories {
		if c.ID <= 0 || strings.TrimSpace(c.Name) == "" {
			return errors.Errorf("category %d: id and name are required", c.ID)
		}
		categories[c.ID] = true
	}
	for _, p := range d.Products {
		switch {
		case p.ID <= 0 || strings.TrimSpace(p.Name) == "":
			return errors.Errorf("product %d: id and name are required", p.ID)
		case p.Price.IsNegative():
			return errors.Errorf("product %d: negative price", p.ID)
		case p.Stock < 0:
			return errors.Errorf("product %d: negative stock", p.ID)
		case p.CategoryID != 0 && !categories[p.CategoryID]:
			return errors.Errorf("product %d: unknown category %d", p.ID, p.CategoryID)
		}
	}
	users := make(map[int64]bool, len(d.Users))
	for _, u := range d.Users {
		if u.ID <= 0 || u.Username == "" {
			return errors.Errorf("user %d: id and username are required", u.ID)
		}
		if u.Role != user.RoleCustomer && u.Role != user.RoleAdmin {
			return errors.Errorf("user %d: unknown role %q", u.ID, u.Role)
		}
		users[u.ID] = true
	}
	for _, k := range d.APIKeys {
		switch {
		case k.ID == "" || k.Key == "":
			return errors.Errorf("api key %q: id and key are required", k.ID)
		case !users[k.UserID]:
			return errors.Errorf("api key %q: unknown user %d", k.ID, k.UserID)
		}
	}
	return nil
}

// KeyInfos returns the API keys in stored form, hashed under pepper.
func (d *Dataset) KeyInfos(pepper []byte) []auth.APIKeyInfo {
	out := make([]auth.APIKeyInfo, 0, len(d.APIKeys))
	for _, k := range d.APIKeys {
		out = append(out, auth.APIKeyInfo{
			ID:      k.ID,
			KeyHash: auth.HashKey(pepper, k.Key),
			Name:    k.Name,
			UserID:  k.UserID,
			Scopes:  k.Scopes,
		})
	}
	return out
}

// Store receives seeded records. *memory.Store implements it.
type Store interface {
	PutProduct(p product.Product)
	PutUser(u user.User)
	PutAPIKey(k auth.APIKeyInfo)
}

// Apply writes the dataset into s.
func (d *Dataset) Apply(s Store, pepper []byte) {
	for _, p := range d.Products {
		s.PutProduct(p)
	}
	for _, u := range d.Users {
		s.PutUser(u)
	}
	for _, k := range d.KeyInfos(pepper) {
		s.PutAPIKey(k)
	}
}

func decodeCategory(d *jx.Decoder) (Category, error) {
	var c Category
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			c.ID, err = d.Int64()
		case "name":
			c.Name, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	return c, err
}

func decodeProduct(d *jx.Decoder) (product.Product, error) {
	var p product.Product
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			p.ID, err = d.Int64()
		case "name":
			p.Name, err = d.Str()
		case "price":
			p.Price, err = decodeDecimal(d)
		case "stock":
			p.Stock, err = d.Int()
		case "categoryId":
			p.CategoryID, err = d.Int64()
		default:
			err = d.Skip()
		}
		return err
	})
	return p, err
}

// decodeDecimal accepts both "2.50" and 2.50.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = s
	default:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = n.String()
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, errors.Wrapf(err, "price %q", raw)
	}
	return v, nil
}

func decodeUser(d *jx.Decoder) (user.User, error) {
	u := user.User{Role: user.RoleCustomer}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			u.ID, err = d.Int64()
		case "username":
			u.Username, err = d.Str()
		case "email":
			u.Email, err = d.Str()
		case "role":
			var role string
			role, err = d.Str()
			u.Role = user.Role(strings.ToUpper(role))
		default:
			err = d.Skip()
		}
		return err
	})
	return u, err
}

func decodeAPIKey(d *jx.Decoder) (APIKey, error) {
	var k APIKey
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			k.ID, err = d.Str()
		case "name":
			k.Name, err = d.Str()
		case "userId":
			k.UserID, err = d.Int64()
		case "key":
			k.Key, err = d.Str()
		case "scopes":
			err = d.Arr(func(d *jx.Decoder) error {
				s, err := d.Str()
				k.Scopes = append(k.Scopes, s)
				return err
			})
		default:
			err = d.Skip()
		}
		return err
	})
	return k, err
}
