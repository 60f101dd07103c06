// Package engine defines the capabilities the drivers need from an external
// physics host.
//
// Two host shapes are covered:
//
//   - [Scene]: a frame-stepped scene graph with rigid-body world, import,
//     render and save (Blender's rigid-body world).
//   - [Realtime]: a free-running physics session that advances on its own
//     clock (PyBullet in real-time mode).
//
// Implementations live in sub-packages (blender, pybullet, dry) and are
// selected by name through the drivers package. None of them implement
// physics in Go; the dry driver only records placement so the orchestration
// can run headless.
package engine
