package database

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/go-errors/errors"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// BlobBucket is the part of a GridFS bucket used by BlobRepository.
// *mongo.GridFSBucket satisfies it.
type BlobBucket interface {
	UploadFromStream(ctx context.Context, filename string, source io.Reader, opts ...options.Lister[options.GridFSUploadOptions]) (bson.ObjectID, error)
	DownloadToStream(ctx context.Context, fileID any, stream io.Writer) (int64, error)
	Delete(ctx context.Context, fileID any) error
}

type BlobOptions struct {
	// Filename defaults to a random UUID
	Filename string
	Metadata bson.M
}

// BlobRepository stores binary payloads in a GridFS bucket. It follows the
// callback conventions of the document repositories.
type BlobRepository struct {
	bucket BlobBucket
}

func NewBlobRepository(bucket BlobBucket) (*BlobRepository, error) {
	if bucket == nil {
		return nil, errors.New("bucket cannot be nil")
	}
	return &BlobRepository{bucket: bucket}, nil
}

// NewMongoBlobRepository builds a blob repository over a bucket of a
// connector registered in the datasource
func NewMongoBlobRepository(ds *Datasource, connectorName string, bucketName string) (*BlobRepository, error) {
	connector, err := ds.GetMongoConnector(connectorName)
	if err != nil {
		return nil, err
	}
	return NewBlobRepository(connector.GridFSBucket(bucketName))
}

func (repository *BlobRepository) ConvertId(id any) (any, error) {
	return ConvertId(id)
}

// Put(ctx, data, [BlobOptions], Callback[bson.ObjectID]). Data may be a
// []byte, a string or an io.Reader.
func (repository *BlobRepository) Put(ctx context.Context, args ...any) error {
	positional, cb, err := splitCallback[bson.ObjectID]("Put", args, 2, 3)
	if err != nil {
		return err
	}

	blobOptions, err := toBlobOptions(optionalArgument(positional, 1))
	if err != nil {
		return err
	}

	data := positional[0]
	ctx = ensureContext(ctx)

	dispatch(cb, func() (bson.ObjectID, error) {
		source, ok := blobReader(data)
		if !ok {
			return bson.NilObjectID, newValueTypeError("data", data, "binary")
		}

		filename := blobOptions.Filename
		if filename == "" {
			filename = uuid.New().String()
		}

		uploadOptions := options.GridFSUpload()
		if blobOptions.Metadata != nil {
			uploadOptions.SetMetadata(blobOptions.Metadata)
		}

		return repository.bucket.UploadFromStream(ctx, filename, source, uploadOptions)
	})

	return nil
}

// Get(ctx, id, Callback[[]byte])
func (repository *BlobRepository) Get(ctx context.Context, args ...any) error {
	positional, cb, err := splitCallback[[]byte]("Get", args, 2, 2)
	if err != nil {
		return err
	}

	id := positional[0]
	ctx = ensureContext(ctx)

	dispatch(cb, func() ([]byte, error) {
		fileId, err := blobId(id)
		if err != nil {
			return nil, err
		}

		var buffer bytes.Buffer
		if _, err := repository.bucket.DownloadToStream(ctx, fileId, &buffer); err != nil {
			return nil, err
		}
		return buffer.Bytes(), nil
	})

	return nil
}

// Delete(ctx, id, Callback[bool])
func (repository *BlobRepository) Delete(ctx context.Context, args ...any) error {
	positional, cb, err := splitCallback[bool]("Delete", args, 2, 2)
	if err != nil {
		return err
	}

	id := positional[0]
	ctx = ensureContext(ctx)

	dispatch(cb, func() (bool, error) {
		fileId, err := blobId(id)
		if err != nil {
			return false, err
		}

		if err := repository.bucket.Delete(ctx, fileId); err != nil {
			return false, err
		}
		return true, nil
	})

	return nil
}

func blobId(id any) (bson.ObjectID, error) {
	switch v := id.(type) {
	case bson.ObjectID:
		return v, nil
	case *bson.ObjectID:
		if v != nil {
			return *v, nil
		}
	case string:
		return parseObjectId("id", v)
	}
	return bson.NilObjectID, newValueTypeError("id", id, "object or string")
}

func blobReader(data any) (io.Reader, bool) {
	switch v := data.(type) {
	case []byte:
		return bytes.NewReader(v), true
	case string:
		return strings.NewReader(v), true
	case io.Reader:
		return v, v != nil
	}
	return nil, false
}

func toBlobOptions(value any) (BlobOptions, error) {
	switch v := value.(type) {
	case nil:
		return BlobOptions{}, nil
	case BlobOptions:
		return v, nil
	case *BlobOptions:
		if v != nil {
			return *v, nil
		}
		return BlobOptions{}, nil
	case string:
		return BlobOptions{Filename: v}, nil
	}
	return BlobOptions{}, newArgumentTypeError("options", value, "object")
}
