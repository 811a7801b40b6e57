package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name string
		file string
		cfg  Config
		want bool
	}{
		{"empty config", "a.wav", Config{}, true},
		{"include hit", "a.wav", Config{Include: []string{"*.wav"}}, true},
		{"include miss", "a.mpg", Config{Include: []string{"*.wav"}}, false},
		{"exclude wins", "a.wav", Config{Include: []string{"*.wav"}, Exclude: []string{"a.*"}}, false},
		{"search all terms", "Interview_Final.wav", Config{Search: []string{"interview", "final"}}, true},
		{"search missing term", "Interview_Draft.wav", Config{Search: []string{"interview", "final"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.file, tt.cfg))
		})
	}
}

func TestParsePatternList(t *testing.T) {
	assert.Nil(t, ParsePatternList(""))
	assert.Equal(t, []string{"*.wav", "*.mpg"}, ParsePatternList(" *.wav, ,*.mpg "))
}
