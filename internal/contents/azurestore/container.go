package azurestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"

	"github.com/rescale/notebook-filetree/internal/config"
	"github.com/rescale/notebook-filetree/internal/constants"
	"github.com/rescale/notebook-filetree/internal/http"
)

// folderMetadataKey marks a zero-length blob as a directory, the same
// convention Storage Explorer and ADLS use.
const folderMetadataKey = "hdi_isfolder"

// BlobInfo describes one blob or virtual directory.
type BlobInfo struct {
	Name     string
	Size     int64
	Modified time.Time
	IsDir    bool
}

// Container is the blob container surface the store needs.
type Container interface {
	// List returns the blobs and, when delimited, the virtual directories
	// ("prefix/" names) directly under prefix.
	List(ctx context.Context, prefix string, delimited bool) ([]string, []BlobInfo, error)
	Properties(ctx context.Context, name string) (BlobInfo, error)
	Download(ctx context.Context, name string, w io.Writer) (int64, error)
	Upload(ctx context.Context, name string, data []byte, folder bool) error
	StageBlock(ctx context.Context, name, blockID string, data []byte) error
	CommitBlockList(ctx context.Context, name string, blockIDs []string) error
	Delete(ctx context.Context, name string) error
	DownloadURL(name string) (string, error)
}

// sdkContainer implements Container over azblob.
type sdkContainer struct {
	client *container.Client
}

// NewContainer connects to the configured container. A container SAS URL
// takes precedence over account and key.
func NewContainer(cfg *config.Config) (Container, error) {
	httpClient, err := http.CreateOptimizedClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}
	clientOptions := azcore.ClientOptions{
		Transport: httpClient, // keep the proxy-aware connection pool
	}

	if cfg.Azure.SASURL != "" {
		client, err := container.NewClientWithNoCredential(cfg.Azure.SASURL, &container.ClientOptions{ClientOptions: clientOptions})
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure client: %w", err)
		}
		return &sdkContainer{client: client}, nil
	}

	cred, err := azblob.NewSharedKeyCredential(cfg.Azure.Account, cfg.Azure.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.Azure.Account)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, &azblob.ClientOptions{ClientOptions: clientOptions})
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}
	return &sdkContainer{client: client.ServiceClient().NewContainerClient(cfg.Azure.Container)}, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func isFolder(metadata map[string]*string) bool {
	for k, v := range metadata {
		if strings.EqualFold(k, folderMetadataKey) && v != nil && strings.EqualFold(*v, "true") {
			return true
		}
	}
	return false
}

func (c *sdkContainer) List(ctx context.Context, prefix string, delimited bool) ([]string, []BlobInfo, error) {
	var prefixes []string
	var blobs []BlobInfo

	add := func(items []*container.BlobItem) {
		for _, item := range items {
			info := BlobInfo{Name: deref(item.Name), IsDir: isFolder(item.Metadata)}
			if item.Properties != nil {
				info.Size = deref(item.Properties.ContentLength)
				info.Modified = deref(item.Properties.LastModified)
			}
			blobs = append(blobs, info)
		}
	}

	include := container.ListBlobsInclude{Metadata: true}
	if delimited {
		pager := c.client.NewListBlobsHierarchyPager("/", &container.ListBlobsHierarchyOptions{
			Prefix:  to.Ptr(prefix),
			Include: include,
		})
		for pager.More() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				return nil, nil, err
			}
			for _, p := range page.Segment.BlobPrefixes {
				prefixes = append(prefixes, deref(p.Name))
			}
			add(page.Segment.BlobItems)
		}
		return prefixes, blobs, nil
	}

	pager := c.client.NewListBlobsFlatPager(&container.ListBlobsFlatOptions{
		Prefix:  to.Ptr(prefix),
		Include: include,
	})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, nil, err
		}
		add(page.Segment.BlobItems)
	}
	return nil, blobs, nil
}

func (c *sdkContainer) Properties(ctx context.Context, name string) (BlobInfo, error) {
	props, err := c.client.NewBlobClient(name).GetProperties(ctx, nil)
	if err != nil {
		return BlobInfo{}, err
	}
	return BlobInfo{
		Name:     name,
		Size:     deref(props.ContentLength),
		Modified: deref(props.LastModified),
		IsDir:    isFolder(props.Metadata),
	}, nil
}

func (c *sdkContainer) Download(ctx context.Context, name string, w io.Writer) (int64, error) {
	resp, err := c.client.NewBlobClient(name).DownloadStream(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return io.Copy(w, resp.Body)
}

func (c *sdkContainer) Upload(ctx context.Context, name string, data []byte, folder bool) error {
	opts := &blockblob.UploadBufferOptions{}
	if folder {
		opts.Metadata = map[string]*string{folderMetadataKey: to.Ptr("true")}
	}
	_, err := c.client.NewBlockBlobClient(name).UploadBuffer(ctx, data, opts)
	return err
}

func (c *sdkContainer) StageBlock(ctx context.Context, name, blockID string, data []byte) error {
	_, err := c.client.NewBlockBlobClient(name).StageBlock(ctx, blockID, streaming.NopCloser(bytes.NewReader(data)), nil)
	return err
}

func (c *sdkContainer) CommitBlockList(ctx context.Context, name string, blockIDs []string) error {
	_, err := c.client.NewBlockBlobClient(name).CommitBlockList(ctx, blockIDs, nil)
	return err
}

func (c *sdkContainer) Delete(ctx context.Context, name string) error {
	_, err := c.client.NewBlobClient(name).Delete(ctx, &blob.DeleteOptions{
		DeleteSnapshots: to.Ptr(blob.DeleteSnapshotsOptionTypeInclude),
	})
	return err
}

// DownloadURL signs a read-only URL with the shared key. Clients built from
// a SAS URL already carry a token, so the plain blob URL is returned.
func (c *sdkContainer) DownloadURL(name string) (string, error) {
	bc := c.client.NewBlobClient(name)
	u, err := bc.GetSASURL(sas.BlobPermissions{Read: true}, time.Now().Add(constants.PresignExpiry), nil)
	if err != nil {
		if errors.Is(err, bloberror.MissingSharedKeyCredential) {
			return bc.URL(), nil
		}
		return "", err
	}
	return u, nil
}
