package secret

import "testing"

func TestEnvStore_EnvName(t *testing.T) {
	s := NewEnvStore("")
	tests := map[string]string{
		"db:warehouse":   "PURIFY_SECRET_DB_WAREHOUSE",
		"db:read-side 1": "PURIFY_SECRET_DB_READ_SIDE_1",
		"é":              "PURIFY_SECRET__",
	}
	for key, want := range tests {
		if got := s.EnvName(key); got != want {
			t.Errorf("EnvName(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestEnvStore_ReadsEnvironment(t *testing.T) {
	t.Setenv("TEST_PW_DB_MAIN", "hunter2")
	s := NewEnvStore("TEST_PW_")

	got, err := s.Get("db:main")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "hunter2" {
		t.Errorf("Get = %q, want hunter2", got)
	}

	missing, err := s.Get("db:other")
	if err != nil || missing != nil {
		t.Errorf("Get(missing) = %q, %v; want nil, nil", missing, err)
	}
}

func TestEnvStore_SetShadowsAndDeleteMasks(t *testing.T) {
	t.Setenv("TEST_PW_DB_MAIN", "from-env")
	s := NewEnvStore("TEST_PW_")

	if err := s.Set("db:main", []byte("explicit")); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Get("db:main")
	if string(got) != "explicit" {
		t.Errorf("after Set, Get = %q", got)
	}

	if err := s.Delete("db:main"); err != nil {
		t.Fatal(err)
	}
	got, _ = s.Get("db:main")
	if got != nil {
		t.Errorf("after Delete, Get = %q, want nil", got)
	}

	_ = s.Set("db:main", []byte("again"))
	got, _ = s.Get("db:main")
	if string(got) != "again" {
		t.Errorf("after re-Set, Get = %q", got)
	}
}

func TestEnvStore_SetCopiesValue(t *testing.T) {
	s := NewEnvStore("TEST_PW_")
	buf := []byte("abc")
	_ = s.Set("k", buf)
	buf[0] = 'x'
	got, _ := s.Get("k")
	if string(got) != "abc" {
		t.Errorf("Get = %q, want abc", got)
	}
}
