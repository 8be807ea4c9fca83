package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/authaudit/internal/apiclient"
	"github.com/nkiryanov/authaudit/internal/models"
)

const demoItemsPath = "/demo/items"

// DemoAPI is CRUD over the current user's demo items
type DemoAPI struct {
	c doer
}

func (d *DemoAPI) List(ctx context.Context) ([]models.DemoItem, error) {
	items := []models.DemoItem{}
	err := d.c.Do(ctx, &apiclient.Request{Method: http.MethodGet, Path: demoItemsPath}, &items)
	return items, err
}

func (d *DemoAPI) Get(ctx context.Context, id uuid.UUID) (models.DemoItem, error) {
	var item models.DemoItem
	err := d.c.Do(ctx, &apiclient.Request{Method: http.MethodGet, Path: itemPath(id)}, &item)
	return item, err
}

func (d *DemoAPI) Create(ctx context.Context, data models.DemoItemCreate) (models.DemoItem, error) {
	var item models.DemoItem
	err := d.c.Do(ctx, &apiclient.Request{Method: http.MethodPost, Path: demoItemsPath, Body: data}, &item)
	return item, err
}

func (d *DemoAPI) Update(ctx context.Context, id uuid.UUID, data models.DemoItemUpdate) (models.DemoItem, error) {
	var item models.DemoItem
	err := d.c.Do(ctx, &apiclient.Request{Method: http.MethodPut, Path: itemPath(id), Body: data}, &item)
	return item, err
}

func (d *DemoAPI) Delete(ctx context.Context, id uuid.UUID) error {
	return d.c.Do(ctx, &apiclient.Request{Method: http.MethodDelete, Path: itemPath(id)}, nil)
}

func itemPath(id uuid.UUID) string {
	return demoItemsPath + "/" + id.String()
}
