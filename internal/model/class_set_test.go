package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassSet(t *testing.T) {
	set := NewClassSet(" Car", "truck", "", "BUS", "car")

	assert.Equal(t, []string{"bus", "car", "truck"}, set.Labels())
	assert.True(t, set.Contains("CAR"))
	assert.False(t, set.Contains("person"))

	dets := []Detection{{Label: "car"}, {Label: "person"}, {Label: "bus"}, {Label: "car"}}
	assert.Equal(t, 3, set.Count(dets))
}
