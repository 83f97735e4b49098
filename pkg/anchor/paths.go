package anchor

import "path"

// RemoteDir 目标机上存放本工具临时文件的目录
const RemoteDir = "/var/tmp/nirvana"

var (
	ScriptPath = path.Join(RemoteDir, "dms.sh")
	PIDPath    = path.Join(RemoteDir, "dms.pid")
	LogPath    = path.Join(RemoteDir, "dms.log")
)
