package main

import "tools.zach/dev/presenced/internal/paths"

// ///////////////////////////////////////////////
// Path Aliases
// ///////////////////////////////////////////////

// DataPaths aliases [paths.DataDir] into the main package so daemon code can
// reference path helpers without qualifying the internal package name.
type DataPaths = paths.DataDir
