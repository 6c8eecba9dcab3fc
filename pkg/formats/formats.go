// Package formats provides readers and writers for the engine's asset files:
// skeletal animation clips, skeleton and mask definitions, tilesets, the
// map tile grid and the baked terrain mesh cache.
package formats

// Note: ORA_ANIM clips are implemented in anim.go
// Note: skeleton, bone modifier and mask YAML live in skeleton.go
// Note: map.bin is in mapbin.go, Terrain.tm in terrainmesh.go
