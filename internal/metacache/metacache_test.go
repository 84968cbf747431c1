package metacache

import (
	"testing"
	"time"
)

func TestPutGet(t *testing.T) {
	c, err := Open(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if _, ok := c.Get("bitmex"); ok {
		t.Error("empty cache should miss")
	}
	if err := c.Put("bitmex", []byte(`{"id":"bitmex"}`)); err != nil {
		t.Fatal(err)
	}
	body, ok := c.Get("bitmex")
	if !ok || string(body) != `{"id":"bitmex"}` {
		t.Errorf("get = %q, %v", body, ok)
	}
}

func TestPutOverwrites(t *testing.T) {
	c, err := Open(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	c.Put("deribit", []byte("v1"))
	c.Put("deribit", []byte("v2"))
	body, _ := c.Get("deribit")
	if string(body) != "v2" {
		t.Errorf("body = %q, want v2", body)
	}
}

func TestExpiry(t *testing.T) {
	c, err := Open(t.TempDir(), time.Nanosecond)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	c.Put("kraken", []byte("stale"))
	time.Sleep(10 * time.Millisecond)
	if _, ok := c.Get("kraken"); ok {
		t.Error("entry past its TTL should miss")
	}
}

func TestReopenPersists(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	c.Put("okex", []byte("kept"))
	c.Close()

	c, err = Open(dir, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	body, ok := c.Get("okex")
	if !ok || string(body) != "kept" {
		t.Errorf("get after reopen = %q, %v", body, ok)
	}
}
