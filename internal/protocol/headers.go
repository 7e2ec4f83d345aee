package protocol

// Client requests.
const (
	Login              = "LOGIN"
	Register           = "REGISTER"
	Logout             = "LOGOUT"
	Quit               = "QUIT"
	ChangePassword     = "CHANGE_PASSWORD"
	DeleteAccount      = "DELETE_ACCOUNT"
	UpdateProfile      = "UPDATE_PROFILE"
	FetchUser          = "FETCH_USER"
	FetchRooms         = "FETCH_ROOMS"
	FetchMembers       = "FETCH_MEMBERS"
	FetchRecentChats   = "FETCH_RECENT_CHATS"
	FetchFriends       = "FETCH_FRIENDS"
	AddFriend          = "ADD_FRIEND"
	RemoveFriend       = "REMOVE_FRIEND"
	CreateRoom         = "CREATE_ROOM"
	InviteMember       = "INVITE_MEMBER"
	LeaveMember        = "LEAVE_MEMBER"
	KickMember         = "KICK_MEMBER"
	DeleteRoom         = "DELETE_ROOM"
	SendMessage        = "SEND_MESSAGE"
	SendPrivateMessage = "SEND_PRIVATE_MESSAGE"
	DownloadFile       = "DOWNLOAD_FILE"
	JoinStream         = "JOIN_STREAM"
	LeaveStream        = "LEAVE_STREAM"
	VideoStream        = "VIDEO_STREAM"
	AudioStream        = "AUDIO_STREAM"
)

// Server pushes and replies that have no request counterpart.
const (
	Error        = "ERROR"
	Info         = "INFO"
	RecentChats  = "RECENT_CHATS"
	JoinRoom     = "JOIN_ROOM"
	LeaveRoom    = "LEAVE_ROOM"
	MemberJoin   = "MEMBER_JOIN"
	MemberLeave  = "MEMBER_LEAVE"
	Message      = "MESSAGE"
	StreamJoined = "STREAM_JOINED"
)

// Reconnect is synthesized by the client supervisor and never sent on the wire.
const Reconnect = "RECONNECT"

// MessageBody is the {"message": ...} body of ERROR and INFO frames.
type MessageBody struct {
	Message string `json:"message"`
}

// ErrorBody builds an ERROR frame body.
func ErrorBody(msg string) MessageBody { return MessageBody{Message: msg} }
