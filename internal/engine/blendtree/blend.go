package blendtree

import (
	"github.com/Faultbox/midgard-rts/internal/engine/skeleton"
	"github.com/Faultbox/midgard-rts/pkg/math"
)

// Output is the per-anim-bone result of a node.
type Output struct {
	Frame *skeleton.Frame
	Mask  skeleton.AnimMask
}

// Blend merges a and b per anim bone: bones both masks pass are blended by t,
// bones only one mask passes take that side unchanged, and bones neither
// passes are identity. The result carries mask.
func Blend(a, b Output, t float32, mask skeleton.AnimMask) Output {
	n := frameLen(a.Frame)
	if m := frameLen(b.Frame); m > n {
		n = m
	}
	out := skeleton.NewFrame(n)
	for i := 0; i < n; i++ {
		ta, ha, inA := side(a, i)
		tb, hb, inB := side(b, i)
		switch {
		case inA && inB:
			out.Transforms[i] = math.MustBlend(ta, tb, t)
			out.Has[i] = ha || hb
		case inA:
			out.Transforms[i] = ta
			out.Has[i] = ha
		case inB:
			out.Transforms[i] = tb
			out.Has[i] = hb
		}
	}
	return Output{Frame: out, Mask: mask}
}

func frameLen(f *skeleton.Frame) int {
	if f == nil {
		return 0
	}
	return f.Len()
}

// side returns entry i of o and whether o's mask passes it. Entries past the
// frame never pass.
func side(o Output, i int) (math.Transform, bool, bool) {
	if o.Frame == nil || i >= o.Frame.Len() || !o.Mask.Get(i) {
		return math.Transform{}, false, false
	}
	return o.Frame.Transforms[i], o.Frame.Has[i], true
}
