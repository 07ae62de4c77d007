package prompts

import _ "embed"

// Embedded prompt files

//go:embed counselor_system.txt
var counselorSystem string

//go:embed followup_header.txt
var followupHeader string

//go:embed followup_footer.txt
var followupFooter string

//go:embed user_instructions.txt
var userInstructions string

func CounselorSystem() string  { return counselorSystem }
func FollowupHeader() string   { return followupHeader }
func FollowupFooter() string   { return followupFooter }
func UserInstructions() string { return userInstructions }
