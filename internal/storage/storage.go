// Package storage uploads and deletes images in external object storage.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// ResultOK is the Delete result reported for a successful deletion.
const ResultOK = "ok"

// ErrDisabled is returned by Disabled for every upload.
var ErrDisabled = errors.New("storage: object storage is not configured")

// Object identifies a stored object.
type Object struct {
	ID  string
	URL string
}

// ObjectStore is the object-storage collaborator.
//
// Upload returns an Object with a non-empty ID or an error. Delete returns
// the provider's result string; anything other than ResultOK means the
// object may still exist.
type ObjectStore interface {
	Upload(ctx context.Context, data []byte, folder string) (Object, error)
	Delete(ctx context.Context, id string) (string, error)
}

// Cloudinary stores images in a Cloudinary account.
type Cloudinary struct {
	cld *cloudinary.Cloudinary
}

func NewCloudinary(cloudName, apiKey, apiSecret string) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("storage: configuring cloudinary: %w", err)
	}
	return &Cloudinary{cld: cld}, nil
}

func (c *Cloudinary) Upload(ctx context.Context, data []byte, folder string) (Object, error) {
	res, err := c.cld.Upload.Upload(ctx, bytes.NewReader(data), uploader.UploadParams{Folder: folder})
	if err != nil {
		return Object{}, fmt.Errorf("storage: uploading: %w", err)
	}
	if res.Error.Message != "" {
		return Object{}, fmt.Errorf("storage: uploading: %s", res.Error.Message)
	}
	if res.PublicID == "" {
		return Object{}, errors.New("storage: upload returned no public id")
	}
	return Object{ID: res.PublicID, URL: res.SecureURL}, nil
}

func (c *Cloudinary) Delete(ctx context.Context, id string) (string, error) {
	res, err := c.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: id})
	if err != nil {
		return "", fmt.Errorf("storage: deleting %s: %w", id, err)
	}
	if res.Error.Message != "" {
		return res.Result, fmt.Errorf("storage: deleting %s: %s", id, res.Error.Message)
	}
	return res.Result, nil
}

// Disabled rejects uploads. Deleting succeeds so records that reference
// images stored earlier can still be removed.
type Disabled struct{}

func (Disabled) Upload(context.Context, []byte, string) (Object, error) {
	return Object{}, ErrDisabled
}

func (Disabled) Delete(context.Context, string) (string, error) {
	return ResultOK, nil
}
