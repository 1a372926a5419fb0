// Package genome defines the flat numeric encoding of a race car design and the
// manufacturing constraints every design must satisfy before it is raced.
//
// A Genome is a vector of exactly Length values laid out as
//
//	frame_length, upper[0..4], lower[0..4], left_wheel(position, radius), right_wheel(position, radius)
//
// Encode/Decode convert between a Genome and a CarDesign. Clip clamps every field to
// its own domain; Repair additionally rescales each upper/lower profile pair so the
// total height at every sample point lies in [MinTotalHeight, MaxTotalHeight].
// Generative operators call Repair instead of rejecting out-of-range values.
package genome
