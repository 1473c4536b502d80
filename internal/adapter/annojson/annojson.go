// Package annojson encodes samples as .anno JSON sidecars, one file per
// sample next to nothing else: the artifact carries the full tag set, the
// field map, and the annotated object list.
package annojson

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"curator/internal/adapter"
	"curator/internal/services"
)

const formatID = "annojson"

type document struct {
	ID         string         `json:"id"`
	MediaRef   string         `json:"media_ref"`
	SampleTags []string       `json:"sample_tags"`
	Fields     map[string]any `json:"fields"`
	ImageShape []int          `json:"img_shape,omitempty"`
	Objects    []object       `json:"objs_info"`
}

type object struct {
	Name       string     `json:"name"`
	Pose       string     `json:"pose"`
	Truncated  int        `json:"truncated"`
	Difficult  int        `json:"difficult"`
	Confidence float64    `json:"confidence"`
	BBox       [4]float64 `json:"bbox"`
}

type index struct {
	Format  string   `json:"format"`
	Samples []string `json:"samples"`
}

// Adapter implements the annojson format.
type Adapter struct{}

// New constructs the adapter.
func New() *Adapter {
	return &Adapter{}
}

func (a *Adapter) ID() string {
	return formatID
}

// Supports accepts every sample; the sidecar layout has no structural
// requirements beyond an id.
func (a *Adapter) Supports(rec adapter.Record) bool {
	return rec.SampleID != ""
}

func (a *Adapter) Encode(ctx context.Context, rec adapter.Record, opts adapter.EncodeOptions) (*adapter.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts.Tick()

	doc := document{
		ID:         rec.SampleID,
		MediaRef:   rec.MediaRef,
		SampleTags: append([]string{}, rec.Tags...),
		Fields:     exportableFields(rec.Fields),
		Objects:    []object{},
	}
	if h, w, c, ok := adapter.ImageShape(rec.Fields); ok {
		doc.ImageShape = []int{h, w, c}
	}
	for _, obj := range adapter.ParseObjects(rec.Fields) {
		doc.Objects = append(doc.Objects, object{
			Name:       obj.Name,
			Pose:       "Unspecified",
			Truncated:  obj.Truncated,
			Difficult:  obj.Difficult,
			Confidence: obj.Confidence,
			BBox:       obj.BBox,
		})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, services.Wrap(services.ErrEncode, "annojson", "encode", fmt.Sprintf("sample %s", rec.SampleID), err)
	}

	path := filepath.Join(opts.OutputDir, artifactName(rec.SampleID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, services.Wrap(services.ErrEncode, "annojson", "encode", fmt.Sprintf("write %s", path), err)
	}
	opts.Tick()

	return &adapter.Artifact{SampleID: rec.SampleID, Path: path, Bytes: int64(len(data))}, nil
}

// Finalize writes an index.json listing every encoded sample.
func (a *Adapter) Finalize(ctx context.Context, outputDir string, artifacts []adapter.Artifact) (*adapter.Manifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	idx := index{Format: formatID, Samples: make([]string, 0, len(artifacts))}
	for _, art := range artifacts {
		idx.Samples = append(idx.Samples, art.SampleID)
	}
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return nil, services.Wrap(services.ErrEncode, "annojson", "finalize", "marshal index", err)
	}
	indexPath := filepath.Join(outputDir, "index.json")
	if err := os.WriteFile(indexPath, data, 0o644); err != nil {
		return nil, services.Wrap(services.ErrEncode, "annojson", "finalize", fmt.Sprintf("write %s", indexPath), err)
	}

	return &adapter.Manifest{Format: formatID, IndexPath: indexPath, ArtifactCount: len(artifacts)}, nil
}

// exportableFields strips structural keys that the document carries in
// dedicated sections.
func exportableFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if k == "objects" {
			continue
		}
		out[k] = v
	}
	return out
}

func artifactName(sampleID string) string {
	base := filepath.Base(sampleID)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return base + ".anno"
}
