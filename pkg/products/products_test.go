package products

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateNormalizesDriveLinks(t *testing.T) {
	got, err := Validate([]Product{
		{ID: "1", Name: " Apples ", Image: "https://drive.google.com/file/d/abc_123/view?usp=sharing"},
		{ID: "2", Name: "Pears", Image: "https://drive.google.com/uc?export=view&id=XYZ-9"},
		{ID: "3", Name: "Plums", Image: "http://cdn.example.com/plums.png"},
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Apples", got[0].Name)
	assert.Equal(t, "https://lh3.googleusercontent.com/d/abc_123", got[0].Image)
	assert.Equal(t, "https://lh3.googleusercontent.com/d/XYZ-9", got[1].Image)
	assert.Equal(t, "http://cdn.example.com/plums.png", got[2].Image)
}

func TestValidateLimits(t *testing.T) {
	batch := make([]Product, MaxProducts+1)
	for i := range batch {
		batch[i] = Product{ID: fmt.Sprint(i), Image: "https://cdn.example.com/x.jpg"}
	}
	_, err := Validate(batch)
	assert.ErrorIs(t, err, ErrTooMany)

	got, err := Validate(batch[:MaxProducts])
	require.NoError(t, err)
	assert.Len(t, got, MaxProducts)
}

func TestValidateRejectsSchemes(t *testing.T) {
	for _, ref := range []string{
		"javascript:alert(1)",
		"file:///etc/passwd",
		"data:image/png;base64,AAAA",
		"ftp://example.com/a.jpg",
		"/relative/path.jpg",
		"",
	} {
		_, err := Validate([]Product{{ID: "p", Image: ref}})
		assert.ErrorIs(t, err, ErrInvalidImage, ref)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	_, err := Validate([]Product{
		{ID: "a", Image: "ftp://x/a.jpg"},
		{ID: "b", Image: "https://ok.example/b.jpg"},
		{ID: "c", Image: "mailto:someone"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"a"`)
	assert.Contains(t, err.Error(), `"c"`)
}

func TestDecode(t *testing.T) {
	got, err := Decode(strings.NewReader(`[{"id":"1","name":"Milk","image":"https://cdn.example.com/milk.jpg"}]`))
	require.NoError(t, err)
	assert.Equal(t, []Product{{ID: "1", Name: "Milk", Image: "https://cdn.example.com/milk.jpg"}}, got)

	_, err = Decode(strings.NewReader(`{"id":1}`))
	assert.Error(t, err)
}

func TestNamesAndImages(t *testing.T) {
	ps := []Product{
		{Name: "Milk", Image: "https://a/1.jpg"},
		{Name: "", Image: "https://a/1.jpg"},
		{Name: "Bread", Image: "https://a/2.jpg"},
	}
	assert.Equal(t, []string{"Milk", "Bread"}, Names(ps))
	assert.Equal(t, []string{"https://a/1.jpg", "https://a/2.jpg"}, Images(ps))
}
