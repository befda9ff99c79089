// Package i18n renders notification text from translation keys.
//
// Locale catalogs are YAML files embedded under locales/. Each file maps
// translation keys to templates with {name} placeholders. The catalogs are
// registered in an x/text catalog and looked up through a language matcher,
// so a request for "pt" or "en-GB" resolves to the closest bundled locale.
package i18n
