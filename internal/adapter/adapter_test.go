package adapter_test

import (
	"errors"
	"testing"

	"curator/internal/adapter"
	"curator/internal/adapter/annojson"
	"curator/internal/adapter/vocxml"
	"curator/internal/services"
)

func TestRegistryLookup(t *testing.T) {
	reg := adapter.NewRegistry()
	if err := reg.Register(annojson.New()); err != nil {
		t.Fatalf("register annojson: %v", err)
	}
	if err := reg.Register(vocxml.New()); err != nil {
		t.Fatalf("register vocxml: %v", err)
	}

	a, err := reg.Lookup("annojson")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if a.ID() != "annojson" {
		t.Fatalf("expected annojson, got %s", a.ID())
	}

	ids := reg.IDs()
	if len(ids) != 2 || ids[0] != "annojson" || ids[1] != "vocxml" {
		t.Fatalf("unexpected ids: %v", ids)
	}
}

func TestLookupUnknownFormat(t *testing.T) {
	reg := adapter.NewRegistry()
	_, err := reg.Lookup("tfrecord")
	if !errors.Is(err, services.ErrUnknownFormat) {
		t.Fatalf("expected unknown format error, got %v", err)
	}
}

func TestDuplicateRegistrationRejected(t *testing.T) {
	reg := adapter.NewRegistry()
	if err := reg.Register(annojson.New()); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(annojson.New()); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestParseObjects(t *testing.T) {
	fields := map[string]any{
		"objects": []any{
			map[string]any{
				"name":      "person",
				"bbox":      []any{10.0, 20.0, 110.0, 220.0},
				"difficult": 1.0,
			},
			map[string]any{
				"name":       "car",
				"bbox":       []any{5.0, 5.0, 50.0, 40.0},
				"confidence": 0.92,
			},
			"not-an-object",
		},
	}

	objects := adapter.ParseObjects(fields)
	if len(objects) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(objects))
	}
	if objects[0].Name != "person" || objects[0].Difficult != 1 || objects[0].BBox[3] != 220 {
		t.Fatalf("unexpected first object: %#v", objects[0])
	}
	if objects[0].Confidence != -1 {
		t.Fatalf("expected default confidence -1, got %v", objects[0].Confidence)
	}
	if objects[1].Confidence != 0.92 {
		t.Fatalf("expected confidence 0.92, got %v", objects[1].Confidence)
	}
}

func TestImageShapeDefaultsChannels(t *testing.T) {
	h, w, c, ok := adapter.ImageShape(map[string]any{"height": 480.0, "width": 640.0})
	if !ok || h != 480 || w != 640 || c != 3 {
		t.Fatalf("unexpected shape: %d %d %d %v", h, w, c, ok)
	}

	if _, _, _, ok := adapter.ImageShape(map[string]any{"height": 480.0}); ok {
		t.Fatal("shape without width must not be ok")
	}
}
