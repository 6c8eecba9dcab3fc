package shader

import _ "embed"

// TerrainMaskVertexShader draws brush quads into the three mask targets.
//
//go:embed glsl/terrain_mask.vert
var TerrainMaskVertexShader string

// TerrainMaskFragmentShader writes brush alpha into the channel of a mask layer.
//
//go:embed glsl/terrain_mask.frag
var TerrainMaskFragmentShader string

// TerrainBlendVertexShader rasterizes a block in mask UV space.
//
//go:embed glsl/terrain_blend.vert
var TerrainBlendVertexShader string

// TerrainBlendFragmentShader mixes tile layers into diffuse and normal targets.
//
//go:embed glsl/terrain_blend.frag
var TerrainBlendFragmentShader string

//go:embed glsl/terrain_final.vert
var TerrainFinalVertexShader string

//go:embed glsl/terrain_final.frag
var TerrainFinalFragmentShader string

// MeshVertexShader skins instanced meshes from the pose texture.
//
//go:embed glsl/mesh.vert
var MeshVertexShader string

//go:embed glsl/mesh.frag
var MeshFragmentShader string
