package autoreply

import (
	"strings"
	"time"

	"github.com/wagate/pkg/utils"
)

const (
	typingFloor = 1500 * time.Millisecond
	typingCeil  = 8 * time.Second
	perWord     = 200 * time.Millisecond
)

// TypingDelay models how long a human would type the reply:
// max(1.5 s, words · 200 ms ± 1 s), capped at 8 s.
func TypingDelay(reply string, rng utils.Rand) time.Duration {
	words := len(strings.Fields(reply))
	d := time.Duration(words) * perWord
	d += time.Duration((rng.Float64()*2 - 1) * float64(time.Second))
	if d < typingFloor {
		d = typingFloor
	}
	if d > typingCeil {
		d = typingCeil
	}
	return d
}

// PostTypingPause is the brief gap between stopping the typing
// indicator and the actual send: U(300, 800) ms.
func PostTypingPause(rng utils.Rand) time.Duration {
	return utils.JitterBetween(rng, 300*time.Millisecond, 800*time.Millisecond)
}
