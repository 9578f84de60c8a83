package storage

import (
	"context"
	"fmt"
	"mime/multipart"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// PhotoStore uploads profile photos to Cloudinary.
type PhotoStore struct {
	cld *cloudinary.Cloudinary
}

// NewPhotoStore returns nil when no Cloudinary URL is configured; callers
// treat a nil store as "photo uploads disabled".
func NewPhotoStore(cloudinaryURL string) (*PhotoStore, error) {
	if cloudinaryURL == "" {
		return nil, nil
	}
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, err
	}
	return &PhotoStore{cld: cld}, nil
}

func (s *PhotoStore) Upload(ctx context.Context, file multipart.File, userID string) (string, error) {
	params := uploader.UploadParams{
		Folder:         "wellfeed/photos",
		PublicID:       fmt.Sprintf("%s_%s", userID, time.Now().Format("20060102150405")),
		Transformation: "c_limit,w_800,h_800,q_auto",
	}

	result, err := s.cld.Upload.Upload(ctx, file, params)
	if err != nil {
		return "", err
	}
	return result.SecureURL, nil
}
