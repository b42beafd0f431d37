package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"winkwink_server/store"
)

// Presigner is the part of *s3.PresignClient the media service uses
type Presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

const presignExpiry = 5 * time.Minute

// MediaService hands out presigned S3 URLs for avatars. Image bytes never pass
// through the server, the user record only keeps the object key.
type MediaService struct {
	UoW       *UnitOfWork
	Presigner Presigner
	Bucket    string
}

func NewMediaService(uow *UnitOfWork, presigner Presigner, bucket string) *MediaService {
	return &MediaService{UoW: uow, Presigner: presigner, Bucket: bucket}
}

// ProfileUploadURL returns a presigned PUT for the user's avatar and records its key
func (ms *MediaService) ProfileUploadURL(ctx context.Context, userID, contentType string) (string, string, error) {
	if userID == "" {
		return "", "", InvalidArgument("user id is required")
	}
	if !strings.HasPrefix(contentType, "image/") {
		return "", "", InvalidArgument("content type must be an image")
	}
	if err := ms.configured(); err != nil {
		return "", "", err
	}

	key := "profile-pics/" + userID
	err := ms.UoW.Do(ctx, "set_profile_image", func(ctx context.Context, tx store.Tx) error {
		u, err := tx.User(ctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			return PreconditionFailed("your account does not exist")
		}
		if err != nil {
			return err
		}
		if u.ProfileImage == key {
			return nil
		}
		u.ProfileImage = key
		return tx.SaveUser(ctx, u)
	})
	if err != nil {
		return "", "", err
	}

	req, err := ms.Presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(ms.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return "", "", Internal(fmt.Errorf("failed to presign upload: %w", err))
	}
	return req.URL, key, nil
}

// ProfileImageURL returns a presigned GET for the user's own avatar
func (ms *MediaService) ProfileImageURL(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", InvalidArgument("user id is required")
	}
	if err := ms.configured(); err != nil {
		return "", err
	}

	var key string
	err := ms.UoW.Do(ctx, "get_profile_image", func(ctx context.Context, tx store.Tx) error {
		u, err := tx.User(ctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			return PreconditionFailed("your account does not exist")
		}
		if err != nil {
			return err
		}
		key = u.ProfileImage
		return nil
	})
	if err != nil {
		return "", err
	}
	return ms.readURL(ctx, key)
}

// ChatImageURL returns the avatar of a matched peer; unmatched peers stay private
func (ms *MediaService) ChatImageURL(ctx context.Context, viewerID, peerID string) (string, error) {
	if err := validatePair(viewerID, peerID); err != nil {
		return "", err
	}
	if err := ms.configured(); err != nil {
		return "", err
	}

	var key string
	err := ms.UoW.Do(ctx, "get_chat_image", func(ctx context.Context, tx store.Tx) error {
		viewer, peer, err := loadPair(ctx, tx, viewerID, peerID)
		if err != nil {
			return err
		}
		if !viewer.HasMatched(peer.ID) {
			return PreconditionFailed("you are not matched with this user")
		}
		key = peer.ProfileImage
		return nil
	})
	if err != nil {
		return "", err
	}
	return ms.readURL(ctx, key)
}

func (ms *MediaService) readURL(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", NotFound("no profile image")
	}
	req, err := ms.Presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(ms.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return "", Internal(fmt.Errorf("failed to presign read: %w", err))
	}
	return req.URL, nil
}

func (ms *MediaService) configured() error {
	if ms.Presigner == nil || ms.Bucket == "" {
		return PreconditionFailed("image storage is not configured")
	}
	return nil
}
