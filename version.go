package sdcforms

// Version is the current version of the sdcforms module.
const Version = "0.1.0"
