package blocks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergePatch(t *testing.T) {
	tests := []struct {
		name   string
		target string
		patch  string
		want   string
	}{
		{"replace field", `{"text":"a","level":2}`, `{"text":"b"}`, `{"text":"b","level":2}`},
		{"remove field", `{"text":"a","level":2}`, `{"level":null}`, `{"text":"a"}`},
		{"nested object", `{"a":{"b":1,"c":2}}`, `{"a":{"c":null,"d":3}}`, `{"a":{"b":1,"d":3}}`},
		{"arrays replace wholesale", `{"items":[1,2,3]}`, `{"items":[4]}`, `{"items":[4]}`},
		{"empty target", ``, `{"x":true}`, `{"x":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := mergePatch([]byte(tt.target), []byte(tt.patch))
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}

	_, err := mergePatch([]byte(`{}`), []byte(`[1,2]`))
	assert.Error(t, err)
}

func TestHTMLText(t *testing.T) {
	assert.Equal(t, "plain text", htmlText("  plain text "))
	assert.Equal(t, "Title Body", htmlText("<h1>Title</h1><p>Body</p>"))
	assert.Equal(t, "kept", htmlText("<p>kept</p><script>var dropped = 1</script><!-- gone -->"))
	assert.Equal(t, "fish & chips", htmlText("fish &amp; chips"))
	assert.Equal(t, 3, countWords(htmlText("<ul><li>one</li><li>two</li><li>three</li></ul>")))
	assert.Equal(t, "Hello, world. unbelievable", htmlText("<strong>Hello</strong>, world. un<em>believ</em>able"))
	assert.Equal(t, "if a<b then c", htmlText("if a<b then c"))
	assert.Equal(t, "line one line two", htmlText("line one<br>line two"))
	assert.Equal(t, "a1 b2", htmlText("<table><tr><td>a1</td><td>b2</td></tr></table>"))
}

func TestReadingMinutes(t *testing.T) {
	tests := []struct {
		words, mediaSeconds, wpm, want int
	}{
		{0, 0, 200, 1},
		{40, 0, 200, 1},
		{200, 0, 200, 1},
		{201, 0, 200, 2},
		{400, 60, 200, 3},
		{0, 61, 200, 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, readingMinutes(tt.words, tt.mediaSeconds, tt.wpm), "%+v", tt)
	}
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "read_block|text|42", cacheKey("read_block", KindText, 42))
	assert.NotEqual(t, cacheKey("blocks_by_slug", "a"), cacheKey("blocks_by_post", "a"))
}
