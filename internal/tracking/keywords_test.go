package tracking

import (
	"reflect"
	"testing"
)

func TestExtractKeywords(t *testing.T) {
	cases := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "lowercases and strips punctuation",
			text: "Deploy the API-gateway, then VERIFY!",
			want: []string{"deploy", "api", "gateway", "verify"},
		},
		{
			name: "drops stopwords and short tokens",
			text: "run the new db fix for it",
			want: []string{"fix"},
		},
		{
			name: "dedupes preserving first occurrence",
			text: "migrate schema migrate tables schema",
			want: []string{"migrate", "schema", "tables"},
		},
		{
			name: "empty input",
			text: "",
			want: nil,
		},
		{
			name: "caps at eight keywords",
			text: "one1 two2 three3 four4 five5 six6 seven7 eight8 nine9 ten10",
			want: []string{"one1", "two2", "three3", "four4", "five5", "six6", "seven7", "eight8"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ExtractKeywords(tc.text)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("ExtractKeywords(%q) = %v, want %v", tc.text, got, tc.want)
			}
		})
	}
}
