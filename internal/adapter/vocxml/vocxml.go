// Package vocxml encodes samples as Pascal VOC annotation XML. The layout
// needs pixel dimensions, so samples without height and width fields are
// reported as unsupported rather than encoded incorrectly.
package vocxml

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"curator/internal/adapter"
	"curator/internal/services"
)

const formatID = "vocxml"

type annotation struct {
	XMLName  xml.Name  `xml:"annotation"`
	Folder   string    `xml:"folder"`
	Filename string    `xml:"filename"`
	Size     imageSize `xml:"size"`
	Objects  []vocObj  `xml:"object"`
}

type imageSize struct {
	Width  int `xml:"width"`
	Height int `xml:"height"`
	Depth  int `xml:"depth"`
}

type vocObj struct {
	Name      string  `xml:"name"`
	Pose      string  `xml:"pose"`
	Truncated int     `xml:"truncated"`
	Difficult int     `xml:"difficult"`
	BndBox    bndBox  `xml:"bndbox"`
}

type bndBox struct {
	XMin int `xml:"xmin"`
	YMin int `xml:"ymin"`
	XMax int `xml:"xmax"`
	YMax int `xml:"ymax"`
}

// Adapter implements the vocxml format.
type Adapter struct{}

// New constructs the adapter.
func New() *Adapter {
	return &Adapter{}
}

func (a *Adapter) ID() string {
	return formatID
}

// Supports requires pixel dimensions; the VOC size element is mandatory.
func (a *Adapter) Supports(rec adapter.Record) bool {
	_, _, _, ok := adapter.ImageShape(rec.Fields)
	return rec.SampleID != "" && ok
}

func (a *Adapter) Encode(ctx context.Context, rec adapter.Record, opts adapter.EncodeOptions) (*adapter.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts.Tick()

	height, width, channels, ok := adapter.ImageShape(rec.Fields)
	if !ok {
		return nil, services.Wrap(services.ErrEncode, "vocxml", "encode", fmt.Sprintf("sample %s has no image dimensions", rec.SampleID), nil)
	}

	doc := annotation{
		Folder:   filepath.Dir(rec.SampleID),
		Filename: filepath.Base(rec.MediaRef),
		Size:     imageSize{Width: width, Height: height, Depth: channels},
	}
	for _, obj := range adapter.ParseObjects(rec.Fields) {
		doc.Objects = append(doc.Objects, vocObj{
			Name:      obj.Name,
			Pose:      "Unspecified",
			Truncated: obj.Truncated,
			Difficult: obj.Difficult,
			BndBox: bndBox{
				XMin: int(obj.BBox[0]),
				YMin: int(obj.BBox[1]),
				XMax: int(obj.BBox[2]),
				YMax: int(obj.BBox[3]),
			},
		})
	}

	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, services.Wrap(services.ErrEncode, "vocxml", "encode", fmt.Sprintf("sample %s", rec.SampleID), err)
	}
	data = append([]byte(xml.Header), data...)

	path := filepath.Join(opts.OutputDir, artifactName(rec.SampleID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, services.Wrap(services.ErrEncode, "vocxml", "encode", fmt.Sprintf("write %s", path), err)
	}
	opts.Tick()

	return &adapter.Artifact{SampleID: rec.SampleID, Path: path, Bytes: int64(len(data))}, nil
}

// Finalize is a no-op beyond the manifest; VOC layouts carry no index file.
func (a *Adapter) Finalize(ctx context.Context, outputDir string, artifacts []adapter.Artifact) (*adapter.Manifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &adapter.Manifest{Format: formatID, ArtifactCount: len(artifacts)}, nil
}

func artifactName(sampleID string) string {
	base := filepath.Base(sampleID)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return base + ".xml"
}
