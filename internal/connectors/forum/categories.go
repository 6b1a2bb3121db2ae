package forum

import (
	"context"
	"net/url"
	"sync"
)

// categoryIndex lazily resolves category ids to names, fetching the tree
// once per process and flattening subcategories recursively.
type categoryIndex struct {
	client *Client

	once  sync.Once
	err   error
	names map[int64]string
}

func newCategoryIndex(client *Client) *categoryIndex {
	return &categoryIndex{client: client, names: make(map[int64]string)}
}

// Name resolves a category id, returning "" for ids the forum no longer
// knows about.
func (x *categoryIndex) Name(ctx context.Context, id int64) (string, error) {
	x.once.Do(func() {
		x.err = x.load(ctx)
	})
	if x.err != nil {
		return "", x.err
	}
	return x.names[id], nil
}

func (x *categoryIndex) load(ctx context.Context) error {
	q := url.Values{}
	q.Set("include_subcategories", "true")

	var result categoriesResult
	if err := x.client.getJSON(ctx, "/categories.json", q, &result); err != nil {
		return err
	}
	x.index(result.CategoryList.Categories)
	return nil
}

func (x *categoryIndex) index(categories []category) {
	for _, c := range categories {
		x.names[c.ID] = c.Name
		if c.HasChildren {
			x.index(c.SubcategoryList)
		}
	}
}
