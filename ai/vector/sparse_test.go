package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSparseIndicesDeterministic(t *testing.T) {
	sparse := map[string]float32{"golang": 0.9, "engineer": 0.7, "shanghai": 0.4}

	i1, v1 := sparseIndices(sparse)
	i2, v2 := sparseIndices(sparse)
	assert.Equal(t, i1, i2)
	assert.Equal(t, v1, v2)

	require.Len(t, i1, 3)
	for i := 1; i < len(i1); i++ {
		assert.Less(t, i1[i-1], i1[i])
	}
}

func TestSparseIndicesEmpty(t *testing.T) {
	indices, values := sparseIndices(nil)
	assert.Nil(t, indices)
	assert.Nil(t, values)
}

func TestHashTokenStable(t *testing.T) {
	assert.Equal(t, hashToken("golang"), hashToken("golang"))
	assert.NotEqual(t, hashToken("golang"), hashToken("python"))
}

func TestSparseCosine(t *testing.T) {
	a := map[string]float32{"golang": 1.0, "engineer": 0.5}

	t.Run("identical vectors", func(t *testing.T) {
		assert.InDelta(t, 1.0, sparseCosine(a, a), 1e-6)
	})

	t.Run("disjoint vectors", func(t *testing.T) {
		b := map[string]float32{"painter": 1.0}
		assert.Equal(t, 0.0, sparseCosine(a, b))
	})

	t.Run("empty side", func(t *testing.T) {
		assert.Equal(t, 0.0, sparseCosine(a, nil))
		assert.Equal(t, 0.0, sparseCosine(nil, a))
	})

	t.Run("symmetry", func(t *testing.T) {
		b := map[string]float32{"golang": 0.3, "painter": 0.8}
		assert.InDelta(t, sparseCosine(a, b), sparseCosine(b, a), 1e-9)
	})
}
