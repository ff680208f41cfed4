package images

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"gazette/internal/config"
)

func TestUploadByURL(t *testing.T) {
	var gotAuth string
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = r.ParseForm()
		gotForm = map[string]string{
			"image": r.PostFormValue("image"),
			"type":  r.PostFormValue("type"),
			"title": r.PostFormValue("title"),
		}
		_, _ = w.Write([]byte(`{"success": true, "data": {"link": "https://host/abc.jpg", "deletehash": "del123"}}`))
	}))
	defer srv.Close()

	client := NewClient(config.Images{BaseURL: srv.URL, ClientID: "cid"})
	img, err := client.UploadByURL(context.Background(), "https://example.com/pic.jpg", "lead photo")
	if err != nil {
		t.Fatalf("UploadByURL: %v", err)
	}
	if img.URL != "https://host/abc.jpg" || img.DeleteHash != "del123" {
		t.Errorf("image = %+v", img)
	}
	if img.ID == "" {
		t.Error("image id not assigned")
	}
	if gotAuth != "Client-ID cid" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotForm["image"] != "https://example.com/pic.jpg" || gotForm["type"] != "url" || gotForm["title"] != "lead photo" {
		t.Errorf("form = %v", gotForm)
	}
}

func TestUploadRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success": false, "data": {}}`))
	}))
	defer srv.Close()

	client := NewClient(config.Images{BaseURL: srv.URL, ClientID: "cid"})
	if _, err := client.UploadByURL(context.Background(), "https://example.com/pic.jpg", ""); err == nil {
		t.Error("expected error when host reports failure")
	}
}

func TestDelete(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(config.Images{BaseURL: srv.URL, ClientID: "cid"})
	if err := client.Delete(context.Background(), "del123"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if gotPath != "DELETE /image/del123" {
		t.Errorf("path = %q", gotPath)
	}
}
