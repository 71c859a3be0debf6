package auth

import (
	"errors"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys. French is the source language; English is a translation.
const (
	msgInternal                 = "internal"
	msgInvalidCredentials       = "invalid_credentials"
	msgInvalidCredentialsRemain = "invalid_credentials_remaining"
	msgAccountLocked            = "account_locked"
	msgAccountLockedNow         = "account_locked_now"
	msgAccountSuspended         = "account_suspended"
	msgAccountDeleted           = "account_deleted"
	msgAccountUnverified        = "account_unverified"
	msgEmailTaken               = "email_taken"
	msgPhoneTaken               = "phone_taken"
	msgIdentifierTaken          = "identifier_taken"
	msgIdentifierRequired       = "identifier_required"
	msgCredentialsRequired      = "credentials_required"
	msgInvalidEmail             = "invalid_email"
	msgInvalidPhone             = "invalid_phone"
	msgInvalidChannel           = "invalid_channel"
	msgCodeRequired             = "code_required"
	msgPasswordTooShort         = "password_too_short"
	msgPasswordTooLong          = "password_too_long"
	msgPasswordNoUpper          = "password_no_upper"
	msgPasswordNoLower          = "password_no_lower"
	msgPasswordNoDigit          = "password_no_digit"
	msgPasswordNoSpecial        = "password_no_special"
	msgPasswordSame             = "password_same"
	msgCurrentPasswordWrong     = "current_password_wrong"
	msgRoleNotAllowed           = "role_not_allowed"
	msgProviderUnsupported      = "provider_unsupported"
	msgProviderTokenInvalid     = "provider_token_invalid"
	msgAlreadyVerified          = "already_verified"
	msgOtpInvalid               = "otp_invalid"
	msgOtpMismatch              = "otp_mismatch"
	msgOtpExhausted             = "otp_exhausted"
	msgOtpCooldown              = "otp_cooldown"
	msgRateLimited              = "rate_limited"
	msgTokenInvalid             = "token_invalid"
	msgTokenExpired             = "token_expired"
	msgTokenRequired            = "token_required"
	msgUserNotFound             = "user_not_found"
	msgFCMTokenRequired         = "fcm_token_required"
	MsgOtpSent                  = "otp_sent"
	MsgVerified                 = "verified"
	MsgResetSent                = "reset_sent"
	MsgPasswordReset            = "password_reset_done"
	MsgPasswordChanged          = "password_changed"
	MsgLoggedOut                = "logged_out"
	MsgLoggedOutAll             = "logged_out_all"
	MsgFCMTokenUpdated          = "fcm_token_updated"
	msgSubjectVerification      = "subject_verification"
	msgSubjectPasswordReset     = "subject_password_reset"
	msgSubjectPasswordChanged   = "subject_password_changed"
	msgSubjectWelcome           = "subject_welcome"
	msgSMSVerification          = "sms_verification"
	msgSMSPasswordReset         = "sms_password_reset"
	msgAuthorizationMissing     = "authorization_missing"
	msgMalformedBody            = "malformed_body"
)

var messages = [][3]string{
	{msgInternal, "Erreur interne du serveur", "Internal server error"},
	{msgInvalidCredentials, "Identifiants invalides", "Invalid credentials"},
	{msgInvalidCredentialsRemain, "Identifiants invalides. %d tentative(s) restante(s)", "Invalid credentials. %d attempt(s) remaining"},
	{msgAccountLocked, "Compte temporairement bloqué. Réessayez dans %d minutes", "Account temporarily locked. Try again in %d minutes"},
	{msgAccountLockedNow, "Trop de tentatives échouées. Compte bloqué pour %d minutes", "Too many failed attempts. Account locked for %d minutes"},
	{msgAccountSuspended, "Compte suspendu. Contactez le support", "Account suspended. Contact support"},
	{msgAccountDeleted, "Compte supprimé", "Account deleted"},
	{msgAccountUnverified, "Compte non vérifié. Saisissez le code reçu par email ou SMS", "Account not verified. Enter the code sent by email or SMS"},
	{msgEmailTaken, "Cet email est déjà utilisé", "This email is already in use"},
	{msgPhoneTaken, "Ce numéro de téléphone est déjà utilisé", "This phone number is already in use"},
	{msgIdentifierTaken, "Cet email ou ce numéro est déjà utilisé", "This email or phone number is already in use"},
	{msgIdentifierRequired, "Email ou téléphone requis", "Email or phone number required"},
	{msgCredentialsRequired, "Identifiant et mot de passe requis", "Identifier and password required"},
	{msgInvalidEmail, "Adresse email invalide", "Invalid email address"},
	{msgInvalidPhone, "Numéro de téléphone invalide", "Invalid phone number"},
	{msgInvalidChannel, "Canal invalide, utilisez email ou phone", "Invalid channel, use email or phone"},
	{msgCodeRequired, "Code requis", "Code required"},
	{msgPasswordTooShort, "Le mot de passe doit contenir au moins 8 caractères", "Password must be at least 8 characters long"},
	{msgPasswordTooLong, "Le mot de passe ne doit pas dépasser 72 octets", "Password must not exceed 72 bytes"},
	{msgPasswordNoUpper, "Le mot de passe doit contenir au moins une majuscule", "Password must contain an uppercase letter"},
	{msgPasswordNoLower, "Le mot de passe doit contenir au moins une minuscule", "Password must contain a lowercase letter"},
	{msgPasswordNoDigit, "Le mot de passe doit contenir au moins un chiffre", "Password must contain a digit"},
	{msgPasswordNoSpecial, "Le mot de passe doit contenir au moins un caractère spécial", "Password must contain a special character"},
	{msgPasswordSame, "Le nouveau mot de passe doit être différent", "The new password must be different"},
	{msgCurrentPasswordWrong, "Mot de passe actuel incorrect", "Current password is incorrect"},
	{msgRoleNotAllowed, "Ce rôle ne peut pas être choisi à l'inscription", "This role cannot be chosen at registration"},
	{msgProviderUnsupported, "Fournisseur non pris en charge", "Unsupported provider"},
	{msgProviderTokenInvalid, "Jeton du fournisseur invalide", "Invalid provider token"},
	{msgAlreadyVerified, "Déjà vérifié", "Already verified"},
	{msgOtpInvalid, "Code OTP invalide ou expiré", "Invalid or expired code"},
	{msgOtpMismatch, "Code incorrect. %d tentative(s) restante(s)", "Incorrect code. %d attempt(s) remaining"},
	{msgOtpExhausted, "Trop de tentatives. Demandez un nouveau code", "Too many attempts. Request a new code"},
	{msgOtpCooldown, "Veuillez patienter %d secondes avant de demander un nouveau code", "Please wait %d seconds before requesting a new code"},
	{msgRateLimited, "Trop de requêtes. Réessayez dans %d secondes", "Too many requests. Try again in %d seconds"},
	{msgTokenInvalid, "Jeton invalide", "Invalid token"},
	{msgTokenExpired, "Jeton expiré", "Token expired"},
	{msgTokenRequired, "Jeton requis", "Token required"},
	{msgUserNotFound, "Utilisateur introuvable", "User not found"},
	{msgFCMTokenRequired, "Jeton FCM requis", "FCM token required"},
	{msgAuthorizationMissing, "Authentification requise", "Authentication required"},
	{msgMalformedBody, "Corps de requête invalide", "Malformed request body"},
	{MsgOtpSent, "Un code de vérification a été envoyé", "A verification code has been sent"},
	{MsgVerified, "Vérification réussie", "Verification successful"},
	{MsgResetSent, "Si un compte existe, un code de réinitialisation a été envoyé", "If an account exists, a reset code has been sent"},
	{MsgPasswordReset, "Mot de passe réinitialisé. Veuillez vous reconnecter", "Password reset. Please sign in again"},
	{MsgPasswordChanged, "Mot de passe modifié", "Password changed"},
	{MsgLoggedOut, "Déconnexion réussie", "Signed out"},
	{MsgLoggedOutAll, "Déconnecté de tous les appareils", "Signed out of all devices"},
	{MsgFCMTokenUpdated, "Jeton de notification mis à jour", "Notification token updated"},
	{msgSubjectVerification, "Vérifiez votre compte - %s", "Verify your account - %s"},
	{msgSubjectPasswordReset, "Réinitialisation de mot de passe - %s", "Password reset - %s"},
	{msgSubjectPasswordChanged, "Mot de passe modifié - %s", "Password changed - %s"},
	{msgSubjectWelcome, "Bienvenue sur %s !", "Welcome to %s!"},
	{msgSMSVerification, "Votre code de vérification %s est : %s. Valide pendant %d minutes.", "Your %s verification code is %s. Valid for %d minutes."},
	{msgSMSPasswordReset, "Votre code de réinitialisation %s : %s. Valide %d minutes.", "Your %s password reset code: %s. Valid for %d minutes."},
}

var (
	supportedTags = []language.Tag{language.French, language.English}
	matcher       = language.NewMatcher(supportedTags)
	msgCatalog    = buildCatalog()
)

func buildCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.French))
	for _, m := range messages {
		if err := b.SetString(language.French, m[0], m[1]); err != nil {
			panic(err)
		}
		if err := b.SetString(language.English, m[0], m[2]); err != nil {
			panic(err)
		}
	}
	return b
}

// Tag resolves a language preference ("en", "fr-FR" or an Accept-Language
// header) to a supported tag. French is the default.
func Tag(pref string) language.Tag {
	pref = strings.TrimSpace(pref)
	if pref == "" {
		return language.French
	}
	tags, _, err := language.ParseAcceptLanguage(pref)
	if err != nil || len(tags) == 0 {
		return language.French
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return language.French
	}
	return supportedTags[idx]
}

// LangCode is the two-letter code of a supported tag.
func LangCode(tag language.Tag) string {
	if tag == language.English {
		return "en"
	}
	return "fr"
}

// Printer returns a printer bound to the service catalog.
func Printer(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag, message.Catalog(msgCatalog))
}

// Localize renders a message key in the given language.
func Localize(tag language.Tag, key string, args ...any) string {
	return Printer(tag).Sprintf(key, args...)
}

// Message renders err for end users. Foreign errors render as the generic
// internal message.
func Message(tag language.Tag, err error) string {
	var e *Error
	if errors.As(err, &e) {
		return Localize(tag, e.Key, e.Args...)
	}
	return Localize(tag, msgInternal)
}
