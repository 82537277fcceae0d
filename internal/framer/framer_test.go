package framer

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// result is one item yielded by the Framer. We record errors in-line so we can
// compare complete sequences.
type result struct {
	line string
	err  error
}

func feedAll(f *Framer, chunks ...string) []result {
	var results []result
	for _, chunk := range chunks {
		for line, err := range f.Feed([]byte(chunk)) {
			results = append(results, result{line: line, err: err})
		}
	}
	return results
}

func TestFeed(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		chunks []string
		output []result
	}{
		{
			name:   "one line one chunk",
			chunks: []string{"PING :irc\r\n"},
			output: []result{{line: "PING :irc"}},
		},
		{
			name:   "line split mid command",
			chunks: []string{":alice!u@h PRI", "VMSG #g :hi\r\n"},
			output: []result{{line: ":alice!u@h PRIVMSG #g :hi"}},
		},
		{
			name:   "CR and LF in separate chunks",
			chunks: []string{"PING\r", "\n"},
			output: []result{{line: "PING"}},
		},
		{
			name:   "several lines in one chunk",
			chunks: []string{"A\r\nB\r\nC\r\n"},
			output: []result{{line: "A"}, {line: "B"}, {line: "C"}},
		},
		{
			name:   "unterminated tail waits",
			chunks: []string{"A\r\nB"},
			output: []result{{line: "A"}},
		},
		{
			name:   "empty line",
			chunks: []string{"\r\n"},
			output: []result{{line: ""}},
		},
		{
			name:   "byte at a time",
			chunks: []string{"P", "A", "S", "S", " ", "a", "b", "c", "\r", "\n"},
			output: []result{{line: "PASS abc"}},
		},
		{
			name:   "strict mode keeps bare LF as content",
			chunks: []string{"A\nB\r\n"},
			output: []result{{line: "A\nB"}},
		},
		{
			name:   "strict mode never ends a line on bare LF",
			chunks: []string{"A\n"},
			output: nil,
		},
		{
			name:   "lenient mode accepts bare LF",
			config: Config{Lenient: true},
			chunks: []string{"A\nB\r\nC\n"},
			output: []result{{line: "A"}, {line: "B"}, {line: "C"}},
		},
		{
			name:   "lenient mode leaves a lone CR alone",
			config: Config{Lenient: true},
			chunks: []string{"A\rB\n"},
			output: []result{{line: "A\rB"}},
		},
		{
			name:   "line at the limit",
			config: Config{MaxLineLength: 4},
			chunks: []string{"ABCD\r\n"},
			output: []result{{line: "ABCD"}},
		},
		{
			name:   "oversized complete line is discarded",
			config: Config{MaxLineLength: 4},
			chunks: []string{"ABCDE\r\nOK\r\n"},
			output: []result{{err: ErrOversizedLine}, {line: "OK"}},
		},
		{
			name:   "oversized partial line is discarded with its tail",
			config: Config{MaxLineLength: 4},
			chunks: []string{"ABCDEFG", "HIJ", "\r\nOK\r\n"},
			output: []result{{err: ErrOversizedLine}, {line: "OK"}},
		},
		{
			name:   "trailing CR does not count towards the limit",
			config: Config{MaxLineLength: 4},
			chunks: []string{"ABCD\r", "\n"},
			output: []result{{line: "ABCD"}},
		},
		{
			name:   "discarding survives a CRLF split across chunks",
			config: Config{MaxLineLength: 2},
			chunks: []string{"ABC", "D\r", "\nOK\r\n"},
			output: []result{{err: ErrOversizedLine}, {line: "OK"}},
		},
		{
			name:   "fail policy resets the buffer",
			config: Config{MaxLineLength: 4, OversizedPolicy: OversizedFail},
			chunks: []string{"ABCDE\r\nOK\r\n"},
			output: []result{{err: ErrOversizedLine}},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := New(test.config)
			assert.Equal(t, test.output, feedAll(f, test.chunks...))
		})
	}
}

func TestFeedIsLazy(t *testing.T) {
	f := New(Config{})

	for line, err := range f.Feed([]byte("A\r\nB\r\nC")) {
		require.NoError(t, err)
		assert.Equal(t, "A", line)
		break
	}

	// B was not pulled yet. It should come out before anything from the next
	// feed.
	got := feedAll(f, "\r\n")
	assert.Equal(t, []result{{line: "B"}, {line: "C"}}, got)
	assert.Equal(t, 0, f.Buffered())
}

func TestBuffered(t *testing.T) {
	f := New(Config{})

	assert.Empty(t, feedAll(f, "PRIV"))
	assert.Equal(t, 4, f.Buffered())

	assert.Equal(t, []result{{line: "PRIVMSG"}}, feedAll(f, "MSG\r\nxy"))
	assert.Equal(t, 2, f.Buffered())

	f.Reset()
	assert.Equal(t, 0, f.Buffered())
}

func TestOversizedMemoryIsBounded(t *testing.T) {
	f := New(Config{MaxLineLength: 512})

	chunk := strings.Repeat("x", 1024)
	errs := 0
	for i := 0; i < 1000; i++ {
		for _, err := range f.Feed([]byte(chunk)) {
			if err != nil {
				errs++
			}
		}
		require.LessOrEqual(t, f.Buffered(), 1)
	}

	// A single runaway line is reported once.
	assert.Equal(t, 1, errs)

	assert.Equal(t, []result{{line: "PING"}}, feedAll(f, "\r\nPING\r\n"))
}

// Splitting the same bytes into chunks in any way must give the same result
// as feeding them all at once.
func TestFeedAssociative(t *testing.T) {
	inputs := []string{
		":alice!u@h PRIVMSG #g :hi\r\n",
		"PASS abc\r\nNICK bob\r\nUSER bob 0 * :bob\r\n",
		"A\nB\r\n\r\nC\r\r\nD",
		":irc 001 bob :Welcome\r\n:bob!u@h JOIN :#g\r\nPING :x\r\n",
		strings.Repeat("y", 20) + "\r\nok\r\n" + strings.Repeat("z", 9) + "\r\n",
	}

	configs := []Config{
		{},
		{Lenient: true},
		{MaxLineLength: 8},
		{MaxLineLength: 8, Lenient: true},
	}

	rng := rand.New(rand.NewSource(1))

	for _, config := range configs {
		for _, input := range inputs {
			whole := feedAll(New(config), input)

			// Every single split point.
			for i := 0; i <= len(input); i++ {
				got := feedAll(New(config), input[:i], input[i:])
				require.Equal(t, whole, got, "config %+v input %q split at %d",
					config, input, i)
			}

			// Random chunkings.
			for i := 0; i < 200; i++ {
				chunks := randomChunks(rng, input)
				got := feedAll(New(config), chunks...)
				require.Equal(t, whole, got, "config %+v chunks %q", config, chunks)
			}
		}
	}
}

func randomChunks(rng *rand.Rand, s string) []string {
	var chunks []string
	for len(s) > 0 {
		n := rng.Intn(len(s)) + 1
		if n > 5 {
			n = rng.Intn(5) + 1
		}
		chunks = append(chunks, s[:n])
		s = s[n:]
	}
	return chunks
}
