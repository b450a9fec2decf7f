package algorithm

// Bands are [green, nir].
var newNDWI = newIndex("ndwi", 0, 1, false)

// Bands are [red, red edge].
var newNDCI = newIndex("ndci", 1, 0, true)
