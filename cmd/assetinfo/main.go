// Command assetinfo prints the structure of skeleton, animation and baked
// terrain files.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/davecgh/go-spew/spew"

	"github.com/Faultbox/midgard-rts/internal/engine/skeleton"
	"github.com/Faultbox/midgard-rts/pkg/formats"
)

var spewConfig *spew.ConfigState

func init() {
	spewConfig = spew.NewDefaultConfig()
	spewConfig.DisableCapacities = true
	spewConfig.DisablePointerAddresses = true
	spewConfig.MaxDepth = 4
}

func main() {
	sklPath := flag.String("skeleton", "", "Skeleton (.skl) to describe")
	animPath := flag.String("anim", "", "Animation clip (.ska/.anim); resolved against -skeleton when given")
	tmPath := flag.String("tm", "", "Baked Terrain.tm to describe")
	dump := flag.Bool("dump", false, "Dump full structures")
	flag.Parse()

	if *sklPath == "" && *animPath == "" && *tmPath == "" {
		fmt.Fprintln(os.Stderr, "usage: assetinfo [-skeleton x.skl] [-anim a.ska] [-tm Terrain.tm] [-dump]")
		os.Exit(2)
	}

	w := os.Stdout
	var asset *skeleton.Asset
	if *sklPath != "" {
		var err error
		if asset, err = skeleton.Load(*sklPath, 0); err != nil {
			fail(err)
		}
		describeSkeleton(w, asset, *dump)
	}
	if *animPath != "" {
		raw, err := formats.ParseAnimFile(*animPath)
		if err != nil {
			fail(err)
		}
		describeAnim(w, raw, asset, *dump)
	}
	if *tmPath != "" {
		tm, err := formats.ParseTerrainMeshFile(*tmPath)
		if err != nil {
			fail(err)
		}
		describeTerrainMesh(w, tm, *dump)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func describeSkeleton(w io.Writer, a *skeleton.Asset, dump bool) {
	fmt.Fprintf(w, "skeleton %s: %d bones, %d skin, %d animated, root %s\n",
		a.Name, len(a.Bones), a.SkinBoneCount(), a.AnimBoneCount(), a.Bones[a.Root].Name)
	for _, id := range a.Order {
		b := a.Bones[id]
		depth := 0
		for p := b.ParentID; p >= 0; p = a.Bones[p].ParentID {
			depth++
		}
		fmt.Fprintf(w, "%*s%s id=%d skin=%d anim=%d", depth*2, "", b.Name, b.ID, b.SkinID, b.AnimID)
		if b.IsAdjBone {
			fmt.Fprintf(w, " adjust(parent=%d)", b.AdjParentID)
		}
		fmt.Fprintln(w)
	}
	if dump {
		fmt.Fprintln(w, spewConfig.Sdump(a.Bones))
	}
}

func describeAnim(w io.Writer, raw *formats.Anim, a *skeleton.Asset, dump bool) {
	fmt.Fprintf(w, "animation %s: %d frames, %d bones\n", raw.Name, len(raw.Frames), len(raw.Bones))
	if a != nil {
		clip := skeleton.NewSkeletalAnim(a, raw, raw.Name)
		matched := 0
		for _, b := range raw.Bones {
			if a.BoneIDByName(b.Name) >= 0 {
				matched++
			}
		}
		fmt.Fprintf(w, "  %d/%d bones match skeleton %s, %d frames resolved\n", matched, len(raw.Bones), a.Name, clip.Len())
	}
	if dump && len(raw.Frames) > 0 {
		fmt.Fprintln(w, spewConfig.Sdump(raw.Bones, raw.Frames[0]))
	}
}

func describeTerrainMesh(w io.Writer, tm *formats.TerrainMesh, dump bool) {
	fmt.Fprintf(w, "terrain mesh: %dx%d cells, %d vertices\n", tm.Width, tm.Height, len(tm.Vertices))
	if len(tm.Vertices) == 0 {
		return
	}
	lo, hi := tm.Vertices[0].LogicPos[2], tm.Vertices[0].LogicPos[2]
	codes := make(map[string]int)
	for _, v := range tm.Vertices {
		lo, hi = min(lo, v.LogicPos[2]), max(hi, v.LogicPos[2])
		codes[formats.TerrainCodeName(v.TerrainCode)]++
	}
	fmt.Fprintf(w, "  height range %d..%d\n", lo, hi)
	fmt.Fprintf(w, "  terrain types %v\n", codes)
	if dump {
		fmt.Fprintln(w, spewConfig.Sdump(tm.Vertices[0]))
	}
}
