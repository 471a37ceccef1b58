package typeregistry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebula-dds/ddscore/internal/dderr"
)

type Temperature struct {
	SensorID string `ddskey:"true"`
	Celsius  float64
}

type MultiKey struct {
	Region string `ddskey:"true"`
	Zone   string `ddskey:"true"`
	Value  int
}

type NoKeyField struct {
	Value int
}

func TestRegisterAndMarshalRoundTrip(t *testing.T) {
	r := New(0)
	d, err := r.Register("Temperature", Temperature{})
	require.NoError(t, err)
	assert.Equal(t, "Temperature", d.TypeName())

	payload, err := d.Marshal(Temperature{SensorID: "s1", Celsius: 21.5})
	require.NoError(t, err)

	var out Temperature
	require.NoError(t, d.Unmarshal(payload, &out))
	assert.Equal(t, Temperature{SensorID: "s1", Celsius: 21.5}, out)
}

func TestExtractKeyIgnoresNonKeyFields(t *testing.T) {
	r := New(0)
	d, err := r.Register("Temperature", Temperature{})
	require.NoError(t, err)

	p1, err := d.Marshal(Temperature{SensorID: "s1", Celsius: 10})
	require.NoError(t, err)
	p2, err := d.Marshal(Temperature{SensorID: "s1", Celsius: 99})
	require.NoError(t, err)

	k1, err := d.ExtractKey(p1)
	require.NoError(t, err)
	k2, err := d.ExtractKey(p2)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
}

func TestExtractKeyDiffersOnDifferentKeyFieldValues(t *testing.T) {
	r := New(0)
	d, err := r.Register("Temperature", Temperature{})
	require.NoError(t, err)

	pa, err := d.Marshal(Temperature{SensorID: "a", Celsius: 10})
	require.NoError(t, err)
	pb, err := d.Marshal(Temperature{SensorID: "b", Celsius: 10})
	require.NoError(t, err)

	ka, err := d.ExtractKey(pa)
	require.NoError(t, err)
	kb, err := d.ExtractKey(pb)
	require.NoError(t, err)
	assert.NotEqual(t, ka, kb)
}

func TestMultiFieldKeyOrderedByDeclaration(t *testing.T) {
	r := New(0)
	d, err := r.Register("MultiKey", MultiKey{})
	require.NoError(t, err)

	p1, err := d.Marshal(MultiKey{Region: "us", Zone: "east", Value: 1})
	require.NoError(t, err)
	p2, err := d.Marshal(MultiKey{Region: "us", Zone: "east", Value: 2})
	require.NoError(t, err)

	k1, err := d.ExtractKey(p1)
	require.NoError(t, err)
	k2, err := d.ExtractKey(p2)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
}

func TestRegisterWithNoKeyTaggedFieldFails(t *testing.T) {
	r := New(0)
	_, err := r.Register("NoKeyField", NoKeyField{})
	require.Error(t, err)
	assert.True(t, dderr.Is(err, dderr.BadParameter))
}

func TestRegisterSameNameSameShapeReturnsSameDescriptor(t *testing.T) {
	r := New(0)
	d1, err := r.Register("Temperature", Temperature{})
	require.NoError(t, err)
	d2, err := r.Register("Temperature", Temperature{})
	require.NoError(t, err)
	assert.Same(t, d1, d2)
}

func TestRegisterSameNameDifferentShapeFails(t *testing.T) {
	r := New(0)
	_, err := r.Register("Shape", Temperature{})
	require.NoError(t, err)
	_, err = r.Register("Shape", MultiKey{})
	require.Error(t, err)
	assert.True(t, dderr.Is(err, dderr.InconsistentPolicy))
}

func TestLookupFindsRegisteredDescriptor(t *testing.T) {
	r := New(0)
	_, err := r.Register("Temperature", Temperature{})
	require.NoError(t, err)

	d, ok := r.Lookup("Temperature")
	require.True(t, ok)
	assert.Equal(t, "Temperature", d.TypeName())

	_, ok = r.Lookup("DoesNotExist")
	assert.False(t, ok)
}

func TestConcurrentFirstRegisterIsDeduplicated(t *testing.T) {
	r := New(0)
	const n = 32
	descs := make([]*Descriptor, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			descs[i], errs[i] = r.Register("Temperature", Temperature{})
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, descs[0], descs[i])
	}
}

func TestHashKeyIsDeterministic(t *testing.T) {
	r := New(0)
	d, err := r.Register("Temperature", Temperature{})
	require.NoError(t, err)

	p, err := d.Marshal(Temperature{SensorID: "s1", Celsius: 1})
	require.NoError(t, err)
	k, err := d.ExtractKey(p)
	require.NoError(t, err)

	assert.Equal(t, HashKey(k), HashKey(k))
}

func TestPointerZeroValueAlsoCompiles(t *testing.T) {
	r := New(0)
	d, err := r.Register("Temperature", &Temperature{})
	require.NoError(t, err)
	assert.Equal(t, "Temperature", d.TypeName())
}
