// Package pointcloud streams classified points out of survey files.
//
// Decoding of binary survey containers lives outside this repository; callers
// plug it in through Opener. The package ships a reader for whitespace
// separated ASCII clouds (the CloudCompare .asc/.xyz layout with a
// classification column) and an in-memory opener for tests.
package pointcloud
