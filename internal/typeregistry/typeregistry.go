// Package typeregistry implements the Serializer collaborator spec.md §6
// names but leaves external: per-type serialize(sample, out_buf),
// deserialize(in_buf, out_sample), extract_key(sample, out_key), and
// hash_key(key) -> u32, plus the "key field offsets, serializer function
// table" type descriptor spec.md §3 says a Topic pairs with its name.
//
// Grounded on the teacher's internal/beads/format_detect.go +
// format_adapter.go: there, a fixed pair of formats (TOON, JSONL) is
// distinguished by sniffing the payload and dispatching to the matching
// marshal/unmarshal function pair. Here the same dispatch-by-name shape
// generalizes to an open set of application-defined struct types, each
// describing its own key fields via struct tag instead of a content
// sniff, since a Topic's type is bound by name at create_topic time
// rather than detected from the bytes on the wire.
package typeregistry

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"reflect"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/nebula-dds/ddscore/internal/dderr"
	"github.com/nebula-dds/ddscore/internal/sample"
)

// keyTag marks a struct field as part of its type's instance key, e.g.
//
//	type Temperature struct {
//	    SensorID string `ddskey:"true"`
//	    Celsius  float64
//	}
const keyTag = "ddskey"

// Descriptor is the compiled, immutable type descriptor for one
// registered struct type: a stable name, the struct's reflected shape,
// and which of its fields make up the instance key, in declaration
// order. It implements entity.TypeSupport (TypeName, ExtractKey) without
// importing internal/entity, matching that interface's own doc comment
// explaining the inverted dependency.
type Descriptor struct {
	name      string
	rtype     reflect.Type
	keyFields []int
}

func (d *Descriptor) TypeName() string { return d.name }

// Marshal serializes v, which must be an instance (or pointer to an
// instance) of the struct type this Descriptor was compiled from, to the
// wire payload a DataWriter.Write call carries.
func (d *Descriptor) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("typeregistry: marshal %s: %w", d.name, err)
	}
	return data, nil
}

// Unmarshal decodes payload (as produced by Marshal, or received over a
// Transport) into out, which must be a pointer to an instance of this
// Descriptor's struct type.
func (d *Descriptor) Unmarshal(payload []byte, out any) error {
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("typeregistry: unmarshal %s: %w", d.name, err)
	}
	return nil
}

// ExtractKey implements spec.md §6's extract_key(sample, out_key):
// decodes payload into a fresh instance of the struct type, then builds
// a length-prefixed key from the ddskey-tagged fields in declaration
// order, so two payloads with identical key-field values produce an
// identical sample.Key regardless of the rest of the struct's contents.
func (d *Descriptor) ExtractKey(payload []byte) (sample.Key, error) {
	instPtr := reflect.New(d.rtype)
	if err := json.Unmarshal(payload, instPtr.Interface()); err != nil {
		return nil, fmt.Errorf("typeregistry: extract_key %s: decode payload: %w", d.name, err)
	}
	v := instPtr.Elem()

	var buf bytes.Buffer
	var lenPrefix [4]byte
	for _, idx := range d.keyFields {
		fieldData, err := json.Marshal(v.Field(idx).Interface())
		if err != nil {
			return nil, fmt.Errorf("typeregistry: extract_key %s: field %s: %w",
				d.name, d.rtype.Field(idx).Name, err)
		}
		binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(fieldData)))
		buf.Write(lenPrefix[:])
		buf.Write(fieldData)
	}
	return sample.Key(buf.Bytes()), nil
}

// HashKey implements spec.md §6's hash_key(key) -> u32. A 32-bit FNV-1a
// hash over the key's length-prefixed bytes; collisions are expected and
// tolerated the way every other consumer of this hash (instance lookup
// sharding, e.g.) must tolerate them.
func HashKey(k sample.Key) uint32 {
	h := fnv.New32a()
	_, _ = h.Write(k)
	return h.Sum32()
}

// Registry is a dispatch table (pkg/ddsc keeps one per Domain) from topic type name to
// compiled Descriptor, enforcing spec.md §3's "once registered, the type
// descriptor for a given ... topic-name is immutable" invariant:
// registering a different shape under an already-used name fails with
// INCONSISTENT_POLICY instead of silently replacing the descriptor.
type Registry struct {
	mu       sync.RWMutex
	compiled map[string]*Descriptor

	cache  *lru.Cache[string, *Descriptor]
	flight singleflight.Group
}

// New constructs a Registry whose fast-path lookup cache holds up to
// cacheSize compiled descriptors. Eviction from the cache is harmless:
// recompiling a descriptor from its registered struct type is a pure,
// side-effect-free function of that type, so a cache miss just redoes
// cheap reflection work rather than losing information. The slower
// backing map in compiled is the source of truth for the immutability
// invariant and is never evicted.
func New(cacheSize int) *Registry {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	c, err := lru.New[string, *Descriptor](cacheSize)
	if err != nil {
		// Only returns an error for a non-positive size, already guarded above.
		panic(fmt.Sprintf("typeregistry: lru.New: %v", err))
	}
	return &Registry{
		compiled: make(map[string]*Descriptor),
		cache:    c,
	}
}

// Register compiles zero's struct type (zero may be a struct value or a
// pointer to one) into a Descriptor and binds it to name. A second
// Register call for the same name with a type of a different shape fails
// with INCONSISTENT_POLICY, matching CreateTopic's own handling of a
// second create_topic call with a different type under the same name.
// Concurrent first-use Register calls for the same name are deduplicated
// through singleflight so only one goroutine pays the reflection cost.
func (r *Registry) Register(name string, zero any) (*Descriptor, error) {
	v, err, _ := r.flight.Do(name, func() (any, error) {
		if existing, ok := r.lookup(name); ok {
			if existing.rtype != structType(zero) {
				return nil, dderr.New(dderr.InconsistentPolicy,
					"typeregistry: %q already registered as %s", name, existing.rtype)
			}
			return existing, nil
		}
		d, err := compile(name, zero)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.compiled[name] = d
		r.mu.Unlock()
		r.cache.Add(name, d)
		return d, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Descriptor), nil
}

// Lookup returns the Descriptor registered under name, if any, checking
// the bounded cache before falling back to the authoritative map.
func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	if d, ok := r.cache.Get(name); ok {
		return d, true
	}
	d, ok := r.lookup(name)
	if ok {
		r.cache.Add(name, d)
	}
	return d, ok
}

func (r *Registry) lookup(name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.compiled[name]
	return d, ok
}

func structType(zero any) reflect.Type {
	t := reflect.TypeOf(zero)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

// compile reflects zero's struct type once, recording the declaration
// order of every field tagged `ddskey:"true"`.
func compile(name string, zero any) (*Descriptor, error) {
	t := structType(zero)
	if t == nil || t.Kind() != reflect.Struct {
		return nil, dderr.New(dderr.BadParameter, "typeregistry: register %q: not a struct type", name)
	}

	var keyFields []int
	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).Tag.Get(keyTag) == "true" {
			keyFields = append(keyFields, i)
		}
	}
	if len(keyFields) == 0 {
		return nil, dderr.New(dderr.BadParameter,
			"typeregistry: register %q: no field tagged `ddskey:\"true\"`", name)
	}

	return &Descriptor{name: name, rtype: t, keyFields: keyFields}, nil
}
