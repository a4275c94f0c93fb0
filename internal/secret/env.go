package secret

import (
	"os"
	"strings"
	"sync"
	"unicode"
)

// DefaultEnvPrefix is prepended to every environment lookup.
const DefaultEnvPrefix = "PURIFY_SECRET_"

// EnvStore implements SecretStore on top of environment variables.
// Values written with Set live in memory and shadow the environment,
// so "db:warehouse" resolves to $PURIFY_SECRET_DB_WAREHOUSE unless it
// was set explicitly.
type EnvStore struct {
	prefix string
	lookup func(string) (string, bool)

	mu     sync.RWMutex
	values map[string][]byte
	hidden map[string]bool
}

// NewEnvStore creates an EnvStore reading variables named prefix+KEY.
// An empty prefix uses DefaultEnvPrefix.
func NewEnvStore(prefix string) *EnvStore {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	return &EnvStore{
		prefix: prefix,
		lookup: os.LookupEnv,
		values: make(map[string][]byte),
		hidden: make(map[string]bool),
	}
}

// EnvName returns the environment variable consulted for key.
func (s *EnvStore) EnvName(key string) string {
	var b strings.Builder
	b.WriteString(s.prefix)
	for _, r := range key {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToUpper(r))
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func (s *EnvStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = append([]byte(nil), value...)
	delete(s.hidden, key)
	return nil
}

func (s *EnvStore) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[key]; ok {
		return append([]byte(nil), v...), nil
	}
	if s.hidden[key] {
		return nil, nil
	}
	if v, ok := s.lookup(s.EnvName(key)); ok {
		return []byte(v), nil
	}
	return nil, nil
}

// Delete forgets an explicit value and masks the environment for key.
func (s *EnvStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	s.hidden[key] = true
	return nil
}
