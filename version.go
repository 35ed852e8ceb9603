package depot

// InitialGlobalVersion is the version a new world starts at. Zero is reserved
// as "never ran" so a required version of zero accepts every chunk.
const InitialGlobalVersion uint32 = 1

// DidChange reports whether changeVersion is newer than requiredVersion,
// tolerating wrap-around of the 32-bit counter.
func DidChange(changeVersion, requiredVersion uint32) bool {
	if requiredVersion == 0 {
		return true
	}
	return int32(changeVersion-requiredVersion) > 0
}

func nextVersion(v uint32) uint32 {
	v++
	if v == 0 {
		v++
	}
	return v
}
