package user

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/arishrdi/leads-aladdin-sub001/core"
)

var (
	userRoleTag  = "userrole"
	userRoleText = "invalid role"

	usernameOrEmailTag  = "username_or_email"
	usernameOrEmailText = "one of username or email is required"

	// password policy
	pwdMinLen     = 8
	pwdMinLenTag  = "pwdminlen"
	pwdMinLenText = fmt.Sprintf("password must contain at least %d characters", pwdMinLen)

	pwdNoSpaceTag  = "pwdnospace"
	pwdNoSpaceText = "password must not contain whitespace"

	pwdNotAllNumTag  = "pwdnotallnum"
	pwdNotAllNumText = "password cannot be entirely numeric"

	pwdComplexityTag  = "pwdcplx"
	pwdComplexityText = "password must contain at least 1 uppercase character, 1 lowercase character, 1 digit and 1 special character"
	specialRegex      = regexp.MustCompile("[^A-Za-z0-9]")

	pwdMaxSim      = .7
	pwdAttrSimTag  = "pwdtoosim"
	pwdAttrSimText = "password cannot be similar to user attributes"

	pwdNoCommonTag  = "pwdnocommon"
	pwdNoCommonText = "password is too common"

	pwdTexts = map[string]string{
		pwdMinLenTag:     pwdMinLenText,
		pwdNoSpaceTag:    pwdNoSpaceText,
		pwdNotAllNumTag:  pwdNotAllNumText,
		pwdComplexityTag: pwdComplexityText,
		pwdAttrSimTag:    pwdAttrSimText,
		pwdNoCommonTag:   pwdNoCommonText,
	}

	commonPasswords   []string
	commonPasswordsMu sync.RWMutex
)

// InitValidators registers the user validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(userRoleTag, userRoleValidation)
	core.RegisterCustomTranslation(validate, translator, userRoleTag, userRoleText)

	validate.RegisterStructValidation(userStructValidation, NewUser{}, UpdateUser{})
	core.RegisterCustomTranslation(validate, translator, usernameOrEmailTag, usernameOrEmailText)
	for tag, text := range pwdTexts {
		core.RegisterCustomTranslation(validate, translator, tag, text)
	}
}

// LoadCommonPasswords reads the gzipped, one-per-line list of passwords users may not pick.
func LoadCommonPasswords(fsys fs.FS, name string, logger core.Logger) {
	file, err := fsys.Open(name)
	if err != nil {
		logger.Error(fmt.Sprintf("user.LoadCommonPasswords(%s): %v", name, err), err)
		return
	}
	defer file.Close()

	gzRdr, err := gzip.NewReader(file)
	if err != nil {
		logger.Error(fmt.Sprintf("user.LoadCommonPasswords(%s): %v", name, err), err)
		return
	}
	defer gzRdr.Close()

	pwds := make([]string, 0, 128)
	scanner := bufio.NewScanner(gzRdr)
	for scanner.Scan() {
		if pwd := strings.ToLower(strings.TrimSpace(scanner.Text())); pwd != "" {
			pwds = append(pwds, pwd)
		}
	}
	if err = scanner.Err(); err != nil {
		logger.Error(fmt.Sprintf("user.LoadCommonPasswords(%s): %v", name, err), err)
		return
	}
	sort.Strings(pwds)

	commonPasswordsMu.Lock()
	commonPasswords = pwds
	commonPasswordsMu.Unlock()
}

func isCommonPassword(pwd string) bool {
	commonPasswordsMu.RLock()
	defer commonPasswordsMu.RUnlock()

	lpwd := strings.ToLower(pwd)
	idx := sort.SearchStrings(commonPasswords, lpwd)
	return idx < len(commonPasswords) && commonPasswords[idx] == lpwd
}

// Custom Validators

func userRoleValidation(fl validator.FieldLevel) bool {
	return IsValidRole(fl.Field().String())
}

// userStructValidation does struct level validation on NewUser and UpdateUser structs.
func userStructValidation(sl validator.StructLevel) {
	switch usr := sl.Current().Interface().(type) {
	case NewUser:
		if usr.Username == "" && usr.Email == "" {
			sl.ReportError(usr.Username, "username", "Username", usernameOrEmailTag, "")
			sl.ReportError(usr.Email, "email", "Email", usernameOrEmailTag, "")
		}
		if tag := checkPassword(usr.Password, usr.Name, usr.Username, usr.Email); tag != "" {
			sl.ReportError(usr.Password, "password", "Password", tag, "")
		}
	case UpdateUser:
		if usr.Password == "" {
			return
		}
		if tag := checkPassword(usr.Password, usr.Name, usr.Username, usr.Email); tag != "" {
			sl.ReportError(usr.Password, "password", "Password", tag, "")
		}
	}
}

func validatePasswordPolicy(pwd, name, uname, email string) error {
	if tag := checkPassword(pwd, name, uname, email); tag != "" {
		return core.NewFieldError("password", pwdTexts[tag])
	}
	return nil
}

// checkPassword applies the password policy and returns the tag of the first failed rule:
// - minLen: 8
// - no whitespace
// - no all numeric
// - complexity: 1 upper, 1 lower, 1 digit, 1 special
// - no user attrs similarity
// - no common password
func checkPassword(pwd, name, uname, email string) string {
	var (
		digitCount         int
		hasUpper, hasLower bool
	)

	runes := []rune(pwd)
	if len(runes) < pwdMinLen {
		return pwdMinLenTag
	}
	for _, char := range runes {
		if unicode.IsSpace(char) {
			return pwdNoSpaceTag
		}
		if unicode.IsDigit(char) {
			digitCount++
		}
		if unicode.IsUpper(char) {
			hasUpper = true
		}
		if unicode.IsLower(char) {
			hasLower = true
		}
	}

	if digitCount == len(runes) {
		return pwdNotAllNumTag
	}
	if !(hasUpper && hasLower && digitCount > 0 && specialRegex.MatchString(pwd)) {
		return pwdComplexityTag
	}

	getRatio := func(pass, usrAttr string) float64 {
		if usrAttr == "" {
			return 0
		}
		pass, usrAttr = strings.ToLower(pass), strings.ToLower(usrAttr)
		return difflib.NewMatcher(strings.Split(pass, ""), strings.Split(usrAttr, "")).QuickRatio()
	}
	if getRatio(pwd, name) >= pwdMaxSim ||
		getRatio(pwd, uname) >= pwdMaxSim ||
		getRatio(pwd, email) >= pwdMaxSim {
		return pwdAttrSimTag
	}

	if isCommonPassword(pwd) {
		return pwdNoCommonTag
	}
	return ""
}
