package effect

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-pixels/internal/pixel"
)

func TestBuffer_ActivateResetsToBlack(t *testing.T) {
	var b Buffer
	b.Publish([]pixel.RGB{{1, 2, 3}})

	b.Activate(4)

	assert.True(t, b.IsActive())
	assert.Equal(t, 4, b.PixelCount())
	assert.True(t, b.Dirty())
	assert.Equal(t, []pixel.RGB{{}, {}, {}, {}}, b.Pixels())
}

func TestBuffer_Deactivate(t *testing.T) {
	var b Buffer
	b.Activate(2)
	b.Deactivate()
	b.Deactivate()

	assert.False(t, b.IsActive())
	assert.Equal(t, 2, b.PixelCount())
}

func TestBuffer_PublishCopies(t *testing.T) {
	var b Buffer
	src := []pixel.RGB{{10, 20, 30}}
	b.Publish(src)
	src[0] = pixel.RGB{99, 99, 99}

	assert.Equal(t, []pixel.RGB{{10, 20, 30}}, b.Pixels())
}

func TestBuffer_PublishDoesNotMutateHandedOutSlice(t *testing.T) {
	var b Buffer
	b.Publish([]pixel.RGB{{1, 1, 1}})
	got := b.Pixels()

	b.Publish([]pixel.RGB{{2, 2, 2}})

	assert.Equal(t, []pixel.RGB{{1, 1, 1}}, got)
	assert.Equal(t, []pixel.RGB{{2, 2, 2}}, b.Pixels())
}

func TestBuffer_SetDirty(t *testing.T) {
	t.Run("clear after read", func(t *testing.T) {
		var b Buffer
		b.Publish([]pixel.RGB{{1, 1, 1}})
		_ = b.Pixels()
		b.SetDirty(false)
		assert.False(t, b.Dirty())
	})

	t.Run("clear ignored when publish raced the read", func(t *testing.T) {
		var b Buffer
		b.Publish([]pixel.RGB{{1, 1, 1}})
		_ = b.Pixels()
		b.Publish([]pixel.RGB{{2, 2, 2}})
		b.SetDirty(false)

		require.True(t, b.Dirty())
		assert.Equal(t, []pixel.RGB{{2, 2, 2}}, b.Pixels())
	})

	t.Run("force dirty", func(t *testing.T) {
		var b Buffer
		b.Publish(nil)
		_ = b.Pixels()
		b.SetDirty(false)
		b.SetDirty(true)
		assert.True(t, b.Dirty())
	})
}

func TestBuffer_ConcurrentPublishAndRead(t *testing.T) {
	var b Buffer
	b.Activate(8)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		frame := make([]pixel.RGB, 8)
		for i := 0; i < 500; i++ {
			for j := range frame {
				frame[j] = pixel.RGB{float64(i), float64(i), float64(i)}
			}
			b.Publish(frame)
		}
	}()
	go func() {
		defer wg.Done()
		for _i := 0; _i < 500; _i++ {
			if !b.Dirty() {
				continue
			}
			px := b.Pixels()
			// every buffer is uniform; a torn read would mix values
			for _, p := range px {
				assert.Equal(t, px[0], p)
			}
			b.SetDirty(false)
		}
	}()
	wg.Wait()
}
