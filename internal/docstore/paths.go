package docstore

import "fmt"

// Collection paths mirror the layout the web client reads directly: sessions
// and classes live under the owning teacher, while attendance records and user
// profiles live under a shared public namespace.

// SessionsCollection is where a teacher's session records live.
func SessionsCollection(appID, teacherID string) string {
	return fmt.Sprintf("artifacts/%s/users/%s/sessions", appID, teacherID)
}

// ClassesCollection is where a teacher's class definitions live.
func ClassesCollection(appID, teacherID string) string {
	return fmt.Sprintf("artifacts/%s/users/%s/classes", appID, teacherID)
}

// AttendanceCollection holds all attendance records for the app.
func AttendanceCollection(appID string) string {
	return fmt.Sprintf("artifacts/%s/public/data/attendanceRecords", appID)
}

// ProfilesCollection holds the public profile document for every user.
func ProfilesCollection(appID string) string {
	return fmt.Sprintf("artifacts/%s/public/data/allUserProfiles", appID)
}

// PrivateProfileCollection holds a user's private profile document.
func PrivateProfileCollection(appID, uid string) string {
	return fmt.Sprintf("artifacts/%s/users/%s/profile", appID, uid)
}

// NotificationsCollection holds the notification feed for one user.
func NotificationsCollection(appID, uid string) string {
	return fmt.Sprintf("artifacts/%s/users/%s/notifications", appID, uid)
}
