package fitting

import (
	"testing"

	"go.viam.com/test"
)

func TestLayoutLen(t *testing.T) {
	test.That(t, Layout{NumModes: 4}.Len(), test.ShouldEqual, 10)
	test.That(t, Layout{FitScale: true, NumModes: 4}.Len(), test.ShouldEqual, 11)
	test.That(t, Layout{FitScale: true}.Identity(), test.ShouldResemble, []float64{0, 0, 0, 0, 0, 0, 1})
}

func TestAdjust(t *testing.T) {
	seed := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}
	for required := 6; required <= 12; required++ {
		layout := Layout{NumModes: required - 6}
		for l := 0; l <= len(seed); l++ {
			in := seed[:l]
			out := layout.Adjust(in)
			test.That(t, out, test.ShouldHaveLength, required)
			if l < required {
				test.That(t, out[:l], test.ShouldResemble, in)
				for _, v := range out[l:] {
					test.That(t, v, test.ShouldEqual, 0)
				}
			} else {
				test.That(t, out, test.ShouldResemble, in[:required])
			}
		}
	}

	// the seed is left untouched
	in := []float64{1, 2, 3, 4, 5, 6, 7}
	out := Layout{}.Adjust(in)
	out[0] = 100
	test.That(t, in[0], test.ShouldEqual, 1)
}

func TestSplit(t *testing.T) {
	layout := Layout{FitScale: true, NumModes: 2}
	rigid, modes, err := layout.Split([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rigid, test.ShouldResemble, []float64{1, 2, 3, 4, 5, 6, 7})
	test.That(t, modes, test.ShouldResemble, []float64{8, 9})

	_, _, err = layout.Split([]float64{1})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestConvertSeed(t *testing.T) {
	rigid := Layout{NumModes: 2}
	scaled := Layout{FitScale: true, NumModes: 2}

	seed := []float64{1, 2, 3, 4, 5, 6, 0.5, -0.5}
	test.That(t, convertSeed(seed, rigid, scaled), test.ShouldResemble, []float64{1, 2, 3, 4, 5, 6, 1, 0.5, -0.5})
	test.That(t, convertSeed(convertSeed(seed, rigid, scaled), scaled, rigid), test.ShouldResemble, seed)
	test.That(t, convertSeed(seed, rigid, rigid), test.ShouldResemble, seed)
}
