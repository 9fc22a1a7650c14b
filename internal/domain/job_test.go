package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateJobRequestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		req     CreateJobRequest
		wantErr string
	}{
		{
			name: "presigned upload",
			req:  CreateJobRequest{SourceType: "s3_presigned", Extension: "png"},
		},
		{
			name: "local file",
			req:  CreateJobRequest{SourceType: "local_file", ObjectKey: "/tmp/in.png", MimeType: "image/png"},
		},
		{
			name:    "missing source type",
			req:     CreateJobRequest{Extension: "png"},
			wantErr: "source_type is required",
		},
		{
			name:    "unknown source type",
			req:     CreateJobRequest{SourceType: "ftp", Extension: "png"},
			wantErr: "unsupported source_type: ftp",
		},
		{
			name:    "object without key",
			req:     CreateJobRequest{SourceType: "object", Extension: "png"},
			wantErr: "object_key is required for source_type=object",
		},
		{
			name:    "no output format",
			req:     CreateJobRequest{SourceType: "s3_presigned"},
			wantErr: "extension or mime_type is required",
		},
		{
			name: "unnamed transformation",
			req: CreateJobRequest{
				SourceType:      "s3_presigned",
				Extension:       "jpg",
				Transformations: []Transformation{{Name: "resize"}, {Name: " "}},
			},
			wantErr: "transformations[1].name is required",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.req.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestCreateJobRequestChain(t *testing.T) {
	t.Parallel()

	req := CreateJobRequest{
		Transformations: []Transformation{{Name: " maxSize ", Params: Params{"width": 200}}},
		Query:           []string{"desaturate", "crop:x=1,y=2,width=3,height=4"},
	}

	chain, err := req.Chain()
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, "maxSize", chain[0].Name)
	assert.Equal(t, "desaturate", chain[1].Name)
	assert.Equal(t, Params{"x": "1", "y": "2", "width": "3", "height": "4"}, chain[2].Params)

	chain[0].Params["width"] = 1
	assert.Equal(t, 200, req.Transformations[0].Params["width"])
}

func TestNewUsageLog(t *testing.T) {
	t.Parallel()

	u := NewUsageLog("j1", 100, 50, 1_000, 300, 20*time.Millisecond, 0.5)
	assert.Equal(t, int64(5_000), u.PixelsProcessed)
	assert.Equal(t, int64(700), u.BytesSaved)
	assert.Equal(t, int64(20), u.ComputeTimeMS)
	assert.Equal(t, 0.5, u.InputScale)

	grown := NewUsageLog("j2", 1, 1, 10, 50, 0, 0)
	assert.Zero(t, grown.BytesSaved)
	assert.Equal(t, int64(1), grown.ComputeTimeMS)
	assert.Equal(t, 1.0, grown.InputScale)
}
